package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
)

func TestProcessorQueue_RunsEveryJob(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := NewProcessorQueue(func(ctx context.Context, job Job) error {
		assert.Equal(t, job.ID, common.JobIDFromContext(ctx))
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		return nil
	}, nil, WithWorkers(3), WithQueueSize(2))

	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: id}))
	}
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, len(ids))
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(func(context.Context, Job) error { return nil }, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{ID: "late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestProcessorQueue_BackpressureHonorsContext(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(func(ctx context.Context, _ Job) error {
		<-release
		return nil
	}, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "buffered"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{ID: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessorQueue_TimeoutAndPanicsAreContained(t *testing.T) {
	var timedOut, after atomic.Bool
	q := NewProcessorQueue(func(ctx context.Context, job Job) error {
		switch job.ID {
		case "panic":
			panic("boom")
		case "slow":
			<-ctx.Done()
			timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		default:
			after.Store(true)
			return nil
		}
	}, nil, WithWorkers(1), WithProcessTimeout(10*time.Millisecond))

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "panic"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "slow"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "next"}))
	q.Shutdown(context.Background())

	assert.True(t, timedOut.Load())
	assert.True(t, after.Load())
}

func TestProcessorQueue_ShutdownDeadlineCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	var canceled atomic.Bool
	q := NewProcessorQueue(func(ctx context.Context, _ Job) error {
		close(started)
		<-ctx.Done()
		canceled.Store(errors.Is(ctx.Err(), context.Canceled))
		return ctx.Err()
	}, nil, WithWorkers(1), WithProcessTimeout(time.Hour))

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "stuck"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	q.Shutdown(ctx)
	assert.True(t, canceled.Load())
}
