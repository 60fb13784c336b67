// Package progress holds the snapshots observers poll while a job runs.
package progress

import (
	"context"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// Report is one complete progress snapshot. Reports are values: a published
// report is never mutated, so readers can share it freely.
type Report struct {
	JobID       string          `json:"job_id"`
	Phase       constants.Phase `json:"phase"`
	Percent     int             `json:"percent"`
	ChunkIndex  int             `json:"chunk_index,omitempty"`
	Message     string          `json:"message"`
	StartedAt   time.Time       `json:"started_at"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	PartialText string          `json:"partial_text,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Terminal reports whether r is the last report of its job.
func (r Report) Terminal() bool { return r.Phase.Terminal() }

// Sink receives every report a job publishes, in order.
type Sink interface {
	Publish(ctx context.Context, r Report)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Report)

func (f SinkFunc) Publish(ctx context.Context, r Report) { f(ctx, r) }

// Tee fans a report out to several sinks in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, r Report) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(ctx, r)
			}
		}
	})
}

// Discard drops every report.
var Discard Sink = SinkFunc(func(context.Context, Report) {})
