package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// PageBreak separates the text of consecutive pages.
const PageBreak = "\n\f\n"

// TesseractStrategy rasterizes every page and OCRs the images one by one.
type TesseractStrategy struct {
	raster Rasterizer
	recog  Recognizer
	logger *slog.Logger
}

func NewTesseractStrategy(raster Rasterizer, recog Recognizer, logger *slog.Logger) *TesseractStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractStrategy{raster: raster, recog: recog, logger: logger}
}

func (s *TesseractStrategy) Name() constants.StrategyID { return constants.StrategyTesseract }

func (s *TesseractStrategy) Extract(ctx context.Context, document []byte) (string, error) {
	start := time.Now()
	pages, err := s.raster.Rasterize(ctx, document)
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}
	if len(pages) == 0 {
		return "", errors.New("document has no pages")
	}

	var b strings.Builder
	var failures []error
	for i, img := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		txt, err := s.recog.Recognize(ctx, img)
		if err != nil {
			s.logger.Warn("ocr.tesseract.page_failed", "page", i+1, "error", err)
			failures = append(failures, fmt.Errorf("page %d: %w", i+1, err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString(PageBreak)
		}
		b.WriteString(Normalize(txt))
	}
	if len(failures) == len(pages) {
		return "", fmt.Errorf("no page could be recognized: %w", errors.Join(failures...))
	}

	s.logger.Info("ocr.tesseract.ok",
		"pages", len(pages),
		"failed_pages", len(failures),
		"chars", b.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b.String(), nil
}
