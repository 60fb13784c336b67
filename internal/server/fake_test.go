package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/services/jobs"
)

var created = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

// fakeJobs has one finished job "done", one failed "bad" and one running "busy".
type fakeJobs struct {
	mu        sync.Mutex
	submitted []jobs.SubmitRequest
	submitErr error
	reports   []progress.Report
}

func (f *fakeJobs) Submit(_ context.Context, req jobs.SubmitRequest) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return &entity.Job{
		ID:          "01HZX",
		Strategy:    constants.StrategyID(req.Strategy),
		Fingerprint: "fp",
		Source:      req.Source,
		Phase:       constants.PhaseQueued,
		Percent:     constants.PercentQueued,
		CreatedAt:   created,
	}, nil
}

func (f *fakeJobs) Last() jobs.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[len(f.submitted)-1]
}

func (f *fakeJobs) Progress(_ context.Context, id string) (progress.Report, error) {
	switch id {
	case "done":
		return progress.Report{JobID: id, Phase: constants.PhaseDone, Percent: 100, Message: "done", StartedAt: created}, nil
	case "busy":
		return progress.Report{JobID: id, Phase: constants.PhaseGenerating, Percent: 75, ChunkIndex: 3, Message: "LLM Processing chunk no: 3"}, nil
	}
	return progress.Report{}, common.NewAppError("JOB_NOT_FOUND", id, common.ErrNotFound)
}

func (f *fakeJobs) Result(_ context.Context, id string) (string, error) {
	switch id {
	case "done":
		return "enriched text", nil
	case "busy":
		return "", common.NewAppError("JOB_NOT_READY", id, common.ErrNotReady)
	case "bad":
		return "", &jobs.JobFailedError{JobID: id, Kind: core.KindExtraction, Message: "corrupt"}
	}
	return "", common.NewAppError("JOB_NOT_FOUND", id, common.ErrNotFound)
}

func (f *fakeJobs) List(_ context.Context, limit int) ([]*entity.Job, error) {
	out := []*entity.Job{
		{ID: "done", Phase: constants.PhaseDone, Strategy: constants.StrategyMarker, CreatedAt: created},
		{ID: "busy", Phase: constants.PhaseGenerating, Strategy: constants.StrategyTesseract, CreatedAt: created},
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobs) Watch(ctx context.Context, id string) (<-chan progress.Report, func(), error) {
	if _, err := f.Progress(ctx, id); err != nil {
		return nil, nil, err
	}
	ch := make(chan progress.Report, len(f.reports))
	for _, r := range f.reports {
		ch <- r
	}
	close(ch)
	return ch, func() {}, nil
}

type fakeExporter struct {
	from, to *time.Time
}

func (e *fakeExporter) ExportJobsXLSX(_ context.Context, from, to *time.Time) ([]byte, error) {
	e.from, e.to = from, to
	return []byte("PK-xlsx"), nil
}

func watchReports() []progress.Report {
	return []progress.Report{
		{JobID: "busy", Phase: constants.PhaseGenerating, Percent: 75, ChunkIndex: 1},
		{JobID: "busy", Phase: constants.PhaseDone, Percent: 100, Message: "done"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
