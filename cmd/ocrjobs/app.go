package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/ocr-enricher/internal/cache"
	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/llm/ollama"
	"github.com/joseph-ayodele/ocr-enricher/internal/ocr"
	"github.com/joseph-ayodele/ocr-enricher/internal/ocr/fitz"
	"github.com/joseph-ayodele/ocr-enricher/internal/ocr/gosseract"
	"github.com/joseph-ayodele/ocr-enricher/internal/repository"
	"github.com/joseph-ayodele/ocr-enricher/internal/server"
)

// app is everything a subcommand may need, built once from config.
type app struct {
	cfg      *common.Config
	logger   *slog.Logger
	db       *repository.DB
	repo     repository.JobRepository
	store    cache.Store
	llm      *ollama.Client
	registry *ocr.Registry
	proc     *core.Processor
}

func loadConfig() (*common.Config, *slog.Logger, error) {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.Migrate(db, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}

	store, err := openCache(cfg.Cache, db)
	if err != nil {
		repository.Close(db, logger)
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}

	client := ollama.NewClient(ollama.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		PullTimeout: cfg.LLM.PullTimeout,
	}, logger)
	registry := newRegistry(cfg.OCR, logger)
	proc := core.NewProcessor(logger, registry, store, client,
		core.NewProvisioner(client, cfg.LLM.PullTimeout, logger),
		core.Config{
			DefaultModel:   cfg.LLM.DefaultModel,
			ExtractTimeout: cfg.OCR.Timeout,
			StreamTimeout:  cfg.LLM.StreamTimeout,
		})

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repo:     repository.NewJobRepository(db, logger),
		store:    store,
		llm:      client,
		registry: registry,
		proc:     proc,
	}, nil
}

func openCache(cfg common.CacheConfig, db *repository.DB) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedis(cfg.RedisURL)
	case "sql":
		return cache.NewSQL(db.Driver), nil
	default:
		return cache.NewMemory(cfg.MemorySize)
	}
}

// newRegistry builds both strategies. The tesseract strategy's page rasterizer and
// recognizer are either the CLI tools or the cgo bindings, per config.
func newRegistry(cfg common.OCRConfig, logger *slog.Logger) *ocr.Registry {
	ocfg := ocr.Config{
		Pdftoppm:      cfg.Pdftoppm,
		Tesseract:     cfg.Tesseract,
		Marker:        cfg.Marker,
		TesseractLang: cfg.TesseractLang,
		TessdataDir:   cfg.TessdataDir,
		DPI:           cfg.DPI,
		MaxPages:      cfg.MaxPages,
		WorkDir:       cfg.WorkDir,
	}
	runner := ocr.NewExecRunner(logger)

	var raster ocr.Rasterizer
	switch cfg.Rasterizer {
	case "fitz":
		raster = fitz.New(cfg.DPI, cfg.MaxPages, logger)
	default:
		raster = ocr.NewPdftoppmRasterizer(ocfg, runner, logger)
	}
	var recog ocr.Recognizer
	switch cfg.Recognizer {
	case "gosseract":
		recog = gosseract.New(cfg.TesseractLang, cfg.TessdataDir)
	default:
		recog = ocr.NewTesseractCLI(ocfg, runner, logger)
	}

	return ocr.NewRegistry(
		ocr.NewMarkerStrategy(ocfg, runner, logger),
		ocr.NewTesseractStrategy(raster, recog, logger),
	)
}

func (a *app) checks() []server.Check {
	return []server.Check{
		{Name: "database", Fn: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, a.db, 0, a.logger)
		}},
		{Name: "cache", Fn: a.store.Ping},
		{Name: "llm", Fn: a.llm.Ping},
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("cache close failed", "error", err)
	}
	repository.Close(a.db, a.logger)
}
