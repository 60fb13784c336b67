package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/repository"
)

// Pruner deletes finished jobs older than MaxAge and drops them from the board.
type Pruner struct {
	repo   repository.JobRepository
	board  *progress.Board
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time

	sched *gocron.Scheduler
}

func NewPruner(repo repository.JobRepository, board *progress.Board, maxAge time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{repo: repo, board: board, maxAge: maxAge, logger: logger, now: time.Now}
}

// Prune runs one pass and returns how many jobs were removed.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	if p.maxAge <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.maxAge)
	ids, err := p.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("retention.prune.failed", "error", err)
		return 0, err
	}
	for _, id := range ids {
		p.board.Forget(id)
	}
	if len(ids) > 0 {
		p.logger.Info("retention.prune.ok", "deleted", len(ids), "cutoff", cutoff)
	}
	return len(ids), nil
}

// Start schedules Prune every interval. A zero MaxAge or interval disables it.
func (p *Pruner) Start(interval time.Duration) error {
	if p.maxAge <= 0 || interval <= 0 {
		p.logger.Info("retention.disabled")
		return nil
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(interval).Do(func() {
		_, _ = p.Prune(context.Background())
	}); err != nil {
		return err
	}
	p.logger.Info("retention.scheduled", "interval", interval, "max_age", p.maxAge)
	s.StartAsync()
	p.sched = s
	return nil
}

func (p *Pruner) Stop() {
	if p.sched != nil {
		p.sched.Stop()
	}
}
