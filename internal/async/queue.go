package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/internal/core"
)

// Job is one accepted enrichment request waiting for a worker.
type Job struct {
	ID          string
	Request     core.JobRequest
	SubmittedAt time.Time
	RequestID   string
}

// Handler runs a job. The returned error is only logged; handlers own their
// failure reporting.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
