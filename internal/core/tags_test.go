package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
)

func TestTagSummarizer_RendersStructuredAnswer(t *testing.T) {
	gen := &fakeGenerator{out: ` {"tags":["invoice","acme"],"summary":" Bill for March. "}`}
	ts := NewTagSummarizer(gen, nil, nil)

	out, err := ts.Generate(context.Background(), "tag this", "m")
	require.NoError(t, err)
	assert.Equal(t, "Tags: invoice, acme\nSummary: Bill for March.", out)
}

func TestTagSummarizer_PassesThroughFreeText(t *testing.T) {
	for _, raw := range []string{
		"Tags: a, b",
		`{"tags":"not-a-list","summary":"x"}`,
		`{"summary":"missing tags"}`,
	} {
		ts := NewTagSummarizer(&fakeGenerator{out: raw}, nil, nil)
		out, err := ts.Generate(context.Background(), "p", "m")
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	}
}

func TestTagSummarizer_OtherErrorsDoNotPull(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("connection refused")}
	prov := NewProvisioner(gen, time.Second, nil)
	ts := NewTagSummarizer(gen, prov, nil)

	_, err := ts.Generate(context.Background(), "p", "m")
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "failed to generate tags and summary", gerr.Message)
	require.NoError(t, prov.Wait(context.Background()))
	assert.Empty(t, gen.Pulls())
}

func TestProvisioner_DeduplicatesInflightPulls(t *testing.T) {
	gen := &fakeGenerator{pullGate: make(chan struct{})}
	prov := NewProvisioner(gen, 5*time.Second, nil)

	var wg sync.WaitGroup
	started := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- prov.Request("m")
		}()
	}
	wg.Wait()
	close(started)

	n := 0
	for s := range started {
		if s {
			n++
		}
	}
	assert.Equal(t, 1, n)

	close(gen.pullGate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, prov.Wait(ctx))
	assert.Equal(t, []string{"m"}, gen.Pulls())

	// a finished pull no longer blocks a new one
	assert.True(t, prov.Request("m"))
	require.NoError(t, prov.Wait(ctx))
	assert.Len(t, gen.Pulls(), 2)
}

func TestProvisioner_PullErrorIsSwallowed(t *testing.T) {
	gen := &fakeGenerator{pullErr: &llm.StatusError{StatusCode: 500, Message: "disk full"}}
	prov := NewProvisioner(gen, time.Second, nil)
	assert.True(t, prov.Request("m"))
	require.NoError(t, prov.Wait(context.Background()))
}
