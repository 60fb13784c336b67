package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Recognizer OCRs a single page image.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// TesseractCLI runs the tesseract binary once per page.
type TesseractCLI struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractCLI(cfg Config, runner Runner, logger *slog.Logger) *TesseractCLI {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &TesseractCLI{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (t *TesseractCLI) Recognize(ctx context.Context, png []byte) (string, error) {
	f, err := os.CreateTemp(t.cfg.WorkDir, "ocr-page-*.png")
	if err != nil {
		return "", fmt.Errorf("create page file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := f.Write(png); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write page file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close page file: %w", err)
	}

	// tesseract <img> stdout -l eng [--tessdata-dir DIR]
	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %s", stderrOrErr(errb, err))
	}
	return string(out), nil
}
