// Package jobs is the submission/polling surface shared by every transport.
package jobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/async"
	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/repository"
)

// KindInterrupted marks jobs that were still running when the process stopped.
const KindInterrupted = "interrupted"

// Runner executes one job; *core.Processor implements it.
type Runner interface {
	Run(ctx context.Context, jobID string, req core.JobRequest, sink progress.Sink) (string, error)
}

// SubmitRequest is a job submission as received from a transport.
type SubmitRequest struct {
	Document     []byte `validate:"required"`
	Strategy     string `validate:"required,max=32"`
	Fingerprint  string `validate:"max=128"`
	CacheEnabled bool
	Prompt       string `validate:"max=65536"`
	Model        string `validate:"max=256"`
	Source       string `validate:"max=1024"`
}

// JobFailedError is returned by Result for a job that ended in FAILED.
type JobFailedError struct {
	JobID   string
	Kind    string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed (%s): %s", e.JobID, e.Kind, e.Message)
}

func (e *JobFailedError) Is(target error) bool { return target == common.ErrFailed }

// Service accepts jobs, runs them on its worker pool and answers lookups.
type Service struct {
	repo       repository.JobRepository
	board      *progress.Board
	strategies core.StrategySource
	runner     Runner
	queue      async.Queue
	logger     *slog.Logger
	now        func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewService builds the service and starts its worker pool.
func NewService(repo repository.JobRepository, board *progress.Board, strategies core.StrategySource, runner Runner, logger *slog.Logger, opts ...async.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if board == nil {
		board = progress.NewBoard()
	}
	s := &Service{
		repo:       repo,
		board:      board,
		strategies: strategies,
		runner:     runner,
		logger:     logger,
		now:        time.Now,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
	s.queue = async.NewProcessorQueue(s.handle, logger, opts...)
	return s
}

// Board exposes live progress for streaming transports.
func (s *Service) Board() *progress.Board { return s.board }

func (s *Service) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Submit validates req, records the job and queues it. It returns as soon as
// the job is queued.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*entity.Job, error) {
	logger := common.LoggerFrom(ctx, s.logger)
	if err := common.ValidateStruct(req); err != nil {
		logger.Warn("jobs.submit.invalid", "error", err)
		return nil, err
	}
	if !strings.HasPrefix(string(req.Document), constants.PDFMagic) {
		logger.Warn("jobs.submit.not_pdf", "bytes", len(req.Document), "source", req.Source)
		return nil, common.NewAppError("NOT_PDF", "document is not a PDF", common.ErrInvalidInput)
	}
	strategy, ok := s.strategies.Lookup(req.Strategy)
	if !ok {
		err := &core.InvalidStrategyError{Strategy: req.Strategy, Available: s.strategies.Names()}
		logger.Warn("jobs.submit.invalid_strategy", "strategy", req.Strategy)
		return nil, err
	}

	fingerprint := strings.ToLower(strings.TrimSpace(req.Fingerprint))
	if fingerprint == "" {
		fingerprint = core.Fingerprint(req.Document)
	}

	now := s.now().UTC()
	job := &entity.Job{
		ID:           s.newID(),
		Strategy:     strategy.Name(),
		Fingerprint:  fingerprint,
		CacheEnabled: req.CacheEnabled,
		Prompt:       req.Prompt,
		Model:        strings.TrimSpace(req.Model),
		Source:       req.Source,
		Phase:        constants.PhaseQueued,
		Percent:      constants.PercentQueued,
		Message:      "accepted",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		logger.Error("jobs.submit.persist_failed", "job_id", job.ID, "error", err)
		return nil, err
	}
	s.board.Publish(ctx, progress.Report{
		JobID:     job.ID,
		Phase:     job.Phase,
		Percent:   job.Percent,
		Message:   job.Message,
		StartedAt: now,
	})

	err := s.queue.Enqueue(ctx, async.Job{
		ID: job.ID,
		Request: core.JobRequest{
			Document:     req.Document,
			Strategy:     job.Strategy,
			Fingerprint:  fingerprint,
			CacheEnabled: job.CacheEnabled,
			Prompt:       job.Prompt,
			Model:        job.Model,
		},
		SubmittedAt: now,
		RequestID:   common.RequestIDFromContext(ctx),
	})
	if err != nil {
		logger.Error("jobs.submit.enqueue_failed", "job_id", job.ID, "error", err)
		s.abandon(context.WithoutCancel(ctx), job.ID, constants.PercentQueued, core.KindInternal, err)
		return nil, err
	}

	logger.Info("jobs.submit.ok", "job_id", job.ID, "strategy", job.Strategy, "bytes", len(req.Document), "cache", job.CacheEnabled, "prompt", job.Prompt != "", "model", job.Model)
	return job, nil
}

// Progress returns the latest snapshot, live if the job is on the board.
func (s *Service) Progress(ctx context.Context, id string) (progress.Report, error) {
	if r, ok := s.board.Get(id); ok {
		return r, nil
	}
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return progress.Report{}, err
	}
	return reportFromJob(job), nil
}

// Result returns the final text of a DONE job.
func (s *Service) Result(ctx context.Context, id string) (string, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch {
	case job.Phase == constants.PhaseFailed:
		return "", &JobFailedError{JobID: id, Kind: job.ErrorKind, Message: job.ErrorMessage}
	case !job.Finished() || job.Result == nil:
		return "", common.NewAppError("JOB_NOT_READY", fmt.Sprintf("job %s is %s", id, job.Phase), common.ErrNotReady)
	}
	return *job.Result, nil
}

// Get returns the stored job record.
func (s *Service) Get(ctx context.Context, id string) (*entity.Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns the newest jobs first. limit <= 0 means all.
func (s *Service) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	return s.repo.List(ctx, limit)
}

// Watch streams progress for id until the job finishes or cancel is called.
// Jobs no longer on the board yield their stored state once.
func (s *Service) Watch(ctx context.Context, id string) (<-chan progress.Report, func(), error) {
	if _, ok := s.board.Get(id); ok {
		ch, cancel := s.board.Subscribe(id)
		return ch, cancel, nil
	}
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan progress.Report, 1)
	ch <- reportFromJob(job)
	close(ch)
	return ch, func() {}, nil
}

// FailInterrupted marks jobs left unfinished by a previous process as FAILED.
// Documents are not persisted, so such jobs cannot be resumed.
func (s *Service) FailInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.repo.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if j.Finished() {
			continue
		}
		if _, live := s.board.Get(j.ID); live {
			continue
		}
		s.abandon(ctx, j.ID, j.Percent, KindInterrupted, fmt.Errorf("process restarted while job was %s", j.Phase))
		n++
	}
	if n > 0 {
		s.logger.Warn("jobs.recover.failed_interrupted", "count", n)
	}
	return n, nil
}

// Shutdown stops intake and drains the queue.
func (s *Service) Shutdown(ctx context.Context) {
	s.queue.Shutdown(ctx)
}

func (s *Service) abandon(ctx context.Context, id string, percent int, kind string, cause error) {
	r := progress.Report{
		JobID:   id,
		Phase:   constants.PhaseFailed,
		Percent: percent,
		Message: "failed",
		Error:   cause.Error(),
	}
	if err := s.repo.Finish(ctx, r, repository.Outcome{ErrorKind: kind, ErrorMessage: cause.Error()}); err != nil {
		s.logger.Error("jobs.finish.persist_failed", "job_id", id, "error", err)
	}
	s.board.Publish(ctx, r)
}

// handle is the queue worker body.
func (s *Service) handle(ctx context.Context, job async.Job) error {
	logger := common.LoggerFrom(ctx, s.logger)
	sink := &recordingSink{board: s.board, repo: s.repo, logger: logger}

	result, runErr := s.runner.Run(ctx, job.ID, job.Request, sink)

	final, ok := sink.terminal()
	if !ok {
		// nothing terminal was published, e.g. the strategy vanished between submit and run
		last, _ := s.board.Get(job.ID)
		final = progress.Report{JobID: job.ID, Phase: constants.PhaseFailed, Percent: last.Percent, Message: "failed", StartedAt: last.StartedAt, ElapsedMs: last.ElapsedMs}
		if runErr == nil {
			runErr = fmt.Errorf("job ended without a terminal report")
		}
		final.Error = runErr.Error()
	}

	out := repository.Outcome{}
	if runErr != nil {
		out.ErrorKind = core.ErrorKind(runErr)
		out.ErrorMessage = runErr.Error()
		final.Phase = constants.PhaseFailed
	} else {
		out.Result = &result
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.Finish(persistCtx, final, out); err != nil {
		logger.Error("jobs.finish.persist_failed", "job_id", job.ID, "error", err)
		// an unstored result must not be announced as DONE
		final.Phase = constants.PhaseFailed
		final.Message = "failed"
		final.Error = "store job outcome: " + err.Error()
		if runErr == nil {
			runErr = err
		}
		if err := s.repo.Finish(persistCtx, final, repository.Outcome{ErrorKind: core.KindInternal, ErrorMessage: final.Error}); err != nil {
			logger.Error("jobs.finish.persist_failed", "job_id", job.ID, "error", err)
		}
	}
	// published after Finish so a DONE snapshot implies the result is readable
	s.board.Publish(persistCtx, final)
	return runErr
}

func reportFromJob(j *entity.Job) progress.Report {
	r := progress.Report{
		JobID:      j.ID,
		Phase:      j.Phase,
		Percent:    j.Percent,
		ChunkIndex: j.ChunkIndex,
		Message:    j.Message,
		StartedAt:  j.CreatedAt,
		Error:      j.ErrorMessage,
	}
	end := j.UpdatedAt
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	r.ElapsedMs = end.Sub(j.CreatedAt).Milliseconds()
	return r
}
