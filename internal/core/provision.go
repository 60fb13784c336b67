package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
)

// Provisioner pulls missing models in the background so a later job can use them.
// At most one pull per model runs at a time.
type Provisioner struct {
	gen     llm.Generator
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewProvisioner(gen llm.Generator, timeout time.Duration, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Provisioner{gen: gen, timeout: timeout, logger: logger, inflight: make(map[string]struct{})}
}

// Request starts a pull of model and reports whether a new pull was started.
// While a pull of model is in flight, later requests piggy-back on it and
// start nothing, so several failing jobs produce a single pull.
func (p *Provisioner) Request(model string) bool {
	p.mu.Lock()
	if _, busy := p.inflight[model]; busy {
		p.mu.Unlock()
		p.logger.Debug("core.provision.already_running", "model", model)
		return false
	}
	p.inflight[model] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, model)
			p.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		start := time.Now()
		if err := p.gen.Pull(ctx, model); err != nil {
			p.logger.Error("core.provision.failed", "model", model, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
			return
		}
		p.logger.Info("core.provision.ok", "model", model, "elapsed_ms", time.Since(start).Milliseconds())
	}()
	return true
}

// Wait blocks until running pulls finish or ctx ends.
func (p *Provisioner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
