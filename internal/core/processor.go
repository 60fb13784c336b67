package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/cache"
	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
	"github.com/joseph-ayodele/ocr-enricher/internal/ocr"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

// StrategySource resolves strategy ids; *ocr.Registry implements it.
type StrategySource interface {
	Lookup(id string) (ocr.Strategy, bool)
	Names() []string
}

type Config struct {
	// DefaultModel streams requests that carry a prompt but no model.
	DefaultModel   string
	ExtractTimeout time.Duration
	StreamTimeout  time.Duration
}

// Processor runs one enrichment job end to end:
// cache lookup, extraction, cache write, streaming generation, tags/summary.
type Processor struct {
	logger     *slog.Logger
	strategies StrategySource
	cache      cache.Store
	gen        llm.Generator
	prov       *Provisioner
	tags       *TagSummarizer
	cfg        Config
	now        func() time.Time
}

// NewProcessor wires the processor. store may be nil to disable caching entirely.
func NewProcessor(logger *slog.Logger, strategies StrategySource, store cache.Store, gen llm.Generator, prov *Provisioner, cfg Config) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if prov == nil {
		prov = NewProvisioner(gen, 0, logger)
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3"
	}
	return &Processor{
		logger:     logger,
		strategies: strategies,
		cache:      store,
		gen:        gen,
		prov:       prov,
		tags:       NewTagSummarizer(gen, prov, logger),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Provisioner exposes the background model puller so callers can wait for it on shutdown.
func (p *Processor) Provisioner() *Provisioner { return p.prov }

// Run executes req and returns the final text. Progress goes to sink in order;
// a failure after the strategy check publishes a FAILED report before returning.
func (p *Processor) Run(ctx context.Context, jobID string, req JobRequest, sink progress.Sink) (string, error) {
	strategy, ok := p.strategies.Lookup(string(req.Strategy))
	if !ok {
		return "", &InvalidStrategyError{Strategy: string(req.Strategy), Available: p.strategies.Names()}
	}
	if sink == nil {
		sink = progress.Discard
	}
	logger := p.logger.With("job_id", jobID, "strategy", strategy.Name())
	t := &tracker{jobID: jobID, sink: sink, started: p.now(), now: p.now}

	t.publish(ctx, progress.Report{Phase: constants.PhaseQueued, Percent: constants.PercentQueued, Message: "accepted"})

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = Fingerprint(req.Document)
	}

	text, hit := p.lookupCache(ctx, req.CacheEnabled, fingerprint, logger)
	if hit {
		logger.Info("core.cache.hit", "fingerprint", fingerprint)
	} else {
		t.publish(ctx, progress.Report{Phase: constants.PhaseExtracting, Percent: constants.PercentExtracting, Message: "Extracting text from PDF"})
		var err error
		text, err = p.extract(ctx, strategy, req.Document, logger)
		if err != nil {
			xerr := &ExtractionError{Strategy: string(strategy.Name()), Err: err}
			t.fail(ctx, xerr)
			return "", xerr
		}
	}

	t.publish(ctx, progress.Report{Phase: constants.PhaseExtracted, Percent: constants.PercentExtracted, Message: "Text extracted", PartialText: text})

	if req.CacheEnabled && !hit {
		p.storeCache(ctx, fingerprint, text, logger)
	}

	var out strings.Builder
	out.WriteString(text)

	if req.Prompt != "" {
		model := req.Model
		if model == "" {
			model = p.cfg.DefaultModel
		}
		t.publish(ctx, progress.Report{Phase: constants.PhaseGenerating, Percent: constants.PercentGenerating, Message: "Processing LLM"})
		if err := p.generate(ctx, t, model, req.Prompt+text, &out, logger); err != nil {
			t.fail(ctx, err)
			return "", err
		}
	}

	if req.Prompt != "" && req.Model != "" {
		tags, err := p.tags.Generate(ctx, req.Prompt, req.Model)
		if err != nil {
			t.fail(ctx, err)
			return "", err
		}
		out.WriteString(TagsDelimiter)
		out.WriteString(tags)
	}

	result := out.String()
	t.publish(ctx, progress.Report{Phase: constants.PhaseDone, Percent: constants.PercentDone, Message: "done"})
	logger.Info("core.job.done", "chars", len(result), "cache_hit", hit, "elapsed_ms", t.elapsed().Milliseconds())
	return result, nil
}

func (p *Processor) lookupCache(ctx context.Context, enabled bool, key string, logger *slog.Logger) (string, bool) {
	if !enabled || p.cache == nil {
		return "", false
	}
	text, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("core.cache.read_failed", "fingerprint", key, "error", err)
		return "", false
	}
	return text, ok
}

func (p *Processor) storeCache(ctx context.Context, key, text string, logger *slog.Logger) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, text); err != nil {
		logger.Warn("core.cache.write_failed", "fingerprint", key, "error", err)
		return
	}
	logger.Debug("core.cache.stored", "fingerprint", key, "chars", len(text))
}

func (p *Processor) extract(ctx context.Context, s ocr.Strategy, document []byte, logger *slog.Logger) (string, error) {
	if p.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ExtractTimeout)
		defer cancel()
	}
	start := time.Now()
	logger.Info("core.extract.start", "bytes", len(document))
	text, err := s.Extract(ctx, document)
	if err != nil {
		logger.Error("core.extract.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	logger.Info("core.extract.ok", "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// generate streams model output onto out, publishing one report per chunk.
func (p *Processor) generate(ctx context.Context, t *tracker, model, prompt string, out *strings.Builder, logger *slog.Logger) error {
	if p.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StreamTimeout)
		defer cancel()
	}
	start := time.Now()
	stream, err := p.gen.GenerateStream(ctx, model, prompt)
	if err != nil {
		return p.generationFailed(model, err, logger)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Warn("core.stream.close_error", "error", err)
		}
	}()

	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return &GenerationError{Model: model, Message: "generation interrupted", Err: err}
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.generationFailed(model, err, logger)
		}
		chunks++
		out.WriteString(chunk.Text)
		t.publish(ctx, progress.Report{
			Phase:       constants.PhaseGenerating,
			Percent:     constants.PercentGenerating,
			ChunkIndex:  chunks,
			Message:     fmt.Sprintf("LLM Processing chunk no: %d", chunks),
			PartialText: out.String(),
		})
		if chunk.Final {
			break
		}
	}
	logger.Info("core.stream.ok", "model", model, "chunks", chunks, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) generationFailed(model string, err error, logger *slog.Logger) error {
	if _, ok := llm.AsModelNotFound(err); ok {
		logger.Warn("core.stream.model_missing", "model", model)
		p.prov.Request(model)
	}
	logger.Error("core.stream.failed", "model", model, "error", err)
	return &GenerationError{Model: model, Message: "failed to generate text", Err: err}
}

// tracker stamps reports with job id and timing and keeps percent monotonic.
type tracker struct {
	jobID   string
	sink    progress.Sink
	started time.Time
	now     func() time.Time
	last    int
}

func (t *tracker) elapsed() time.Duration { return t.now().Sub(t.started) }

func (t *tracker) publish(ctx context.Context, r progress.Report) {
	r.JobID = t.jobID
	r.StartedAt = t.started
	r.ElapsedMs = t.elapsed().Milliseconds()
	if r.Percent < t.last {
		r.Percent = t.last
	}
	t.last = r.Percent
	t.sink.Publish(ctx, r)
}

// fail publishes the terminal FAILED report even when ctx is already canceled.
func (t *tracker) fail(ctx context.Context, err error) {
	t.publish(context.WithoutCancel(ctx), progress.Report{
		Phase:   constants.PhaseFailed,
		Percent: t.last,
		Message: "failed",
		Error:   err.Error(),
	})
}
