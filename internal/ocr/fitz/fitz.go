// Package fitz rasterizes PDF pages in-process with MuPDF (cgo).
package fitz

import (
	"context"
	"fmt"
	"log/slog"

	gofitz "github.com/gen2brain/go-fitz"
)

// Rasterizer renders pages with MuPDF instead of shelling out to pdftoppm.
type Rasterizer struct {
	DPI      float64
	MaxPages int
	Logger   *slog.Logger
}

func New(dpi, maxPages int, logger *slog.Logger) *Rasterizer {
	if dpi <= 0 {
		dpi = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{DPI: float64(dpi), MaxPages: maxPages, Logger: logger}
}

func (r *Rasterizer) Rasterize(ctx context.Context, document []byte) ([][]byte, error) {
	doc, err := gofitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			r.Logger.Warn("ocr.fitz.close_error", "error", err)
		}
	}()

	n := doc.NumPage()
	if r.MaxPages > 0 && n > r.MaxPages {
		r.Logger.Warn("ocr.raster.truncated", "pages", n, "max_pages", r.MaxPages)
		n = r.MaxPages
	}
	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(i, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

