package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
)

// ProcessorQueue is a bounded in-process queue drained by a fixed worker pool.
type ProcessorQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base is canceled when a shutdown deadline passes so running jobs abort.
	base  context.Context
	abort context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handle Handler, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	base, abort := context.WithCancel(context.Background())
	q := &ProcessorQueue{
		handle:  handle,
		logger:  logger,
		workers: 4,
		timeout: 15 * time.Minute,
		ch:      make(chan Job, 256),
		base:    base,
		abort:   abort,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	ctx = common.WithJobID(ctx, job.ID)
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}

	start := time.Now()
	err := q.safeHandle(ctx, job)
	attrs := []any{
		"worker_id", workerID,
		"job_id", job.ID,
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		q.logger.Error("queue.job.failed", append(attrs, "error", err)...)
		return
	}
	q.logger.Info("queue.job.ok", attrs...)
}

func (q *ProcessorQueue) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return q.handle(ctx, job)
}

// Enqueue hands job to the pool. When the buffer is full it blocks until a
// slot frees up or ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "job_id", job.ID)
		return common.NewAppError("QUEUE_CLOSED", "queue is shutting down", common.ErrUnavailable)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue.ok", "job_id", job.ID, "depth", len(q.ch))
		return nil
	default:
	}
	q.logger.Warn("queue.enqueue.backpressure", "job_id", job.ID, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the number of jobs waiting for a worker.
func (q *ProcessorQueue) Depth() int { return len(q.ch) }

// Shutdown stops intake and waits for queued jobs to drain. If ctx ends
// first, running jobs are canceled.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
		q.abort()
		<-done
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
	q.abort()
}
