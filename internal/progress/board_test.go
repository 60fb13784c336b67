package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

func report(id string, phase constants.Phase, pct int) Report {
	return Report{JobID: id, Phase: phase, Percent: pct}
}

func TestBoardGetReturnsLatest(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	_, ok := b.Get("j1")
	assert.False(t, ok)

	b.Publish(ctx, report("j1", constants.PhaseQueued, 10))
	b.Publish(ctx, report("j1", constants.PhaseExtracting, 30))

	got, ok := b.Get("j1")
	require.True(t, ok)
	assert.Equal(t, constants.PhaseExtracting, got.Phase)
	assert.Equal(t, 30, got.Percent)
}

func TestBoardSnapshotsAreIndependent(t *testing.T) {
	b := NewBoard()
	r := report("j1", constants.PhaseExtracted, 50)
	r.PartialText = "hello"
	b.Publish(context.Background(), r)

	r.PartialText = "mutated"
	got, _ := b.Get("j1")
	assert.Equal(t, "hello", got.PartialText)
}

func TestBoardSubscribeUntilTerminal(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()
	b.Publish(ctx, report("j1", constants.PhaseQueued, 10))

	ch, cancel := b.Subscribe("j1")
	defer cancel()

	b.Publish(ctx, report("j1", constants.PhaseExtracting, 30))
	b.Publish(ctx, report("j1", constants.PhaseDone, 100))

	var phases []constants.Phase
	for r := range ch {
		phases = append(phases, r.Phase)
	}
	assert.Equal(t, []constants.Phase{constants.PhaseQueued, constants.PhaseExtracting, constants.PhaseDone}, phases)
}

func TestBoardSubscribeAfterTerminal(t *testing.T) {
	b := NewBoard()
	b.Publish(context.Background(), report("j1", constants.PhaseFailed, 30))

	ch, cancel := b.Subscribe("j1")
	defer cancel()

	r, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, constants.PhaseFailed, r.Phase)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestBoardSlowSubscriberSeesNewest(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()
	ch, cancel := b.Subscribe("j1")
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		b.Publish(ctx, Report{JobID: "j1", Phase: constants.PhaseGenerating, Percent: 75, ChunkIndex: i + 1})
	}
	b.Publish(ctx, report("j1", constants.PhaseDone, 100))

	var last Report
	for r := range ch {
		last = r
	}
	assert.Equal(t, constants.PhaseDone, last.Phase)
}

func TestBoardForgetClosesSubscribers(t *testing.T) {
	b := NewBoard()
	b.Publish(context.Background(), report("j1", constants.PhaseQueued, 10))
	ch, cancel := b.Subscribe("j1")

	b.Forget("j1")
	cancel() // must not double close

	<-ch
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestBoardConcurrentReaders(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			b.Publish(ctx, Report{JobID: "j1", Phase: constants.PhaseGenerating, Percent: 75, ChunkIndex: i, PartialText: "x"})
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := 0
			for i := 0; i < 100; i++ {
				if got, ok := b.Get("j1"); ok {
					assert.GreaterOrEqual(t, got.ChunkIndex, prev)
					assert.Equal(t, "x", got.PartialText)
					prev = got.ChunkIndex
				}
			}
		}()
	}
	wg.Wait()
}

func TestTee(t *testing.T) {
	var got []string
	a := SinkFunc(func(_ context.Context, r Report) { got = append(got, "a:"+string(r.Phase)) })
	c := SinkFunc(func(_ context.Context, r Report) { got = append(got, "c:"+string(r.Phase)) })

	Tee(a, nil, c).Publish(context.Background(), report("j", constants.PhaseDone, 100))
	assert.Equal(t, []string{"a:DONE", "c:DONE"}, got)
	Discard.Publish(context.Background(), report("j", constants.PhaseDone, 100))
}
