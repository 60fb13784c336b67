// Package ingest turns PDFs dropped into a watched directory into jobs.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/services/jobs"
)

// Submitter accepts jobs; *jobs.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*entity.Job, error)
}

// Defaults are applied to every job the inbox submits.
type Defaults struct {
	Strategy     string
	CacheEnabled bool
	Prompt       string
	Model        string
}

type Config struct {
	Dir         string
	InitialScan bool
	SkipHidden  bool
	Debounce    time.Duration
	MaxBytes    int64 // larger files are rejected
	Defaults    Defaults
}

// Inbox submits each distinct document once per process lifetime.
type Inbox struct {
	cfg    Config
	sub    Submitter
	logger *slog.Logger
	seen   *lru.Cache[string, string] // fingerprint -> job id
}

func New(cfg Config, sub Submitter, logger *slog.Logger) (*Inbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}
	seen, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	return &Inbox{cfg: cfg, sub: sub, logger: logger.With("inbox", cfg.Dir), seen: seen}, nil
}

// Run scans the inbox if configured, then submits files as they arrive until ctx ends.
func (in *Inbox) Run(ctx context.Context) error {
	if in.cfg.InitialScan {
		if _, _, err := in.SubmitDirectory(ctx, in.cfg.Dir, in.cfg.SkipHidden); err != nil {
			return err
		}
	}
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:      []string{in.cfg.Dir},
		Debounce:   in.cfg.Debounce,
		SkipHidden: in.cfg.SkipHidden,
		Logger:     in.logger,
	})
	if err != nil {
		return err
	}
	in.logger.Info("inbox.watch.started", "debounce", in.cfg.Debounce)
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			in.SubmitFile(ctx, path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			in.logger.Warn("inbox.watch.degraded", "error", err)
		}
	}
}

// SubmitFile reads path and submits it unless the same content was already submitted.
func (in *Inbox) SubmitFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}
	doc, err := readLimited(path, in.cfg.MaxBytes)
	if err != nil {
		in.logger.Warn("inbox.read_failed", "path", path, "error", err)
		res.Err = err.Error()
		return res
	}
	fp := core.Fingerprint(doc)
	if id, ok := in.seen.Get(fp); ok {
		in.logger.Debug("inbox.duplicate", "path", path, "job_id", id)
		res.JobID, res.Duplicate = id, true
		return res
	}

	job, err := in.sub.Submit(ctx, jobs.SubmitRequest{
		Document:     doc,
		Strategy:     in.cfg.Defaults.Strategy,
		Fingerprint:  fp,
		CacheEnabled: in.cfg.Defaults.CacheEnabled,
		Prompt:       in.cfg.Defaults.Prompt,
		Model:        in.cfg.Defaults.Model,
		Source:       filepath.Base(path),
	})
	if err != nil {
		in.logger.Error("inbox.submit_failed", "path", path, "error", err)
		res.Err = err.Error()
		return res
	}
	in.seen.Add(fp, job.ID)
	in.logger.Info("inbox.submitted", "path", path, "job_id", job.ID)
	res.JobID = job.ID
	return res
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return b, nil
}
