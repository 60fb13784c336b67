package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/repository"
)

// recordingSink forwards live reports to the board and persists phase changes.
// The terminal report is held back so the worker can store the outcome first.
type recordingSink struct {
	board  *progress.Board
	repo   repository.JobRepository
	logger *slog.Logger

	mu        sync.Mutex
	lastPhase string
	final     *progress.Report
}

func (s *recordingSink) Publish(ctx context.Context, r progress.Report) {
	if r.Terminal() {
		s.mu.Lock()
		s.final = &r
		s.mu.Unlock()
		return
	}
	s.board.Publish(ctx, r)

	s.mu.Lock()
	changed := string(r.Phase) != s.lastPhase
	s.lastPhase = string(r.Phase)
	s.mu.Unlock()
	// chunk reports stay on the board only
	if !changed {
		return
	}
	if err := s.repo.SaveProgress(context.WithoutCancel(ctx), r); err != nil {
		s.logger.Warn("jobs.progress.persist_failed", "job_id", r.JobID, "phase", r.Phase, "error", err)
	}
}

func (s *recordingSink) terminal() (progress.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return progress.Report{}, false
	}
	return *s.final, true
}
