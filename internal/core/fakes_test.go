package core

import (
	"context"
	"io"
	"sync"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
	"github.com/joseph-ayodele/ocr-enricher/internal/ocr"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

type fakeStrategy struct {
	id    constants.StrategyID
	text  string
	err   error
	mu    sync.Mutex
	calls int
}

func (s *fakeStrategy) Name() constants.StrategyID { return s.id }

func (s *fakeStrategy) Extract(ctx context.Context, _ []byte) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.text, s.err
}

func (s *fakeStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	sets   int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	if _, ok := c.data[key]; !ok {
		c.data[key] = value
	}
	return nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }
func (c *fakeCache) Close() error               { return nil }

type fakeStream struct {
	chunks []llm.Chunk
	err    error
	i      int
	closed bool
}

func (s *fakeStream) Recv() (llm.Chunk, error) {
	if s.i < len(s.chunks) {
		c := s.chunks[s.i]
		s.i++
		return c, nil
	}
	if s.err != nil {
		return llm.Chunk{}, s.err
	}
	return llm.Chunk{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeGenerator struct {
	chunks    []llm.Chunk
	streamErr error
	midErr    error
	out       string
	genErr    error
	pullErr   error

	mu          sync.Mutex
	streamCalls []string
	genCalls    []string
	pulls       []string
	pullGate    chan struct{}
	last        *fakeStream
}

func (g *fakeGenerator) Generate(_ context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	g.genCalls = append(g.genCalls, model+"|"+prompt)
	g.mu.Unlock()
	return g.out, g.genErr
}

func (g *fakeGenerator) GenerateStream(_ context.Context, model, prompt string) (llm.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.streamCalls = append(g.streamCalls, model+"|"+prompt)
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	g.last = &fakeStream{chunks: g.chunks, err: g.midErr}
	return g.last, nil
}

func (g *fakeGenerator) Pull(ctx context.Context, model string) error {
	g.mu.Lock()
	g.pulls = append(g.pulls, model)
	gate := g.pullGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.pullErr
}

func (g *fakeGenerator) Pulls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.pulls...)
}

type recordingSink struct {
	mu      sync.Mutex
	reports []progress.Report
}

func (s *recordingSink) Publish(_ context.Context, r progress.Report) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
}

func (s *recordingSink) Reports() []progress.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.Report(nil), s.reports...)
}

func (s *recordingSink) Phases() []constants.Phase {
	var out []constants.Phase
	for _, r := range s.Reports() {
		out = append(out, r.Phase)
	}
	return out
}

func newTestRegistry(strategies ...ocr.Strategy) *ocr.Registry {
	return ocr.NewRegistry(strategies...)
}
