package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Rasterizer renders PDF pages to PNG images, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, document []byte) ([][]byte, error)
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPdftoppmRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PdftoppmRasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &PdftoppmRasterizer{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (p *PdftoppmRasterizer) Rasterize(ctx context.Context, document []byte) ([][]byte, error) {
	dir, in, cleanup, err := scratch(p.cfg.WorkDir, "ocr-pp-*", document)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", strconv.Itoa(p.cfg.DPI), "-png", in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %s", stderrOrErr(errb, err))
	}

	// prefix-1.png, prefix-2.png, ... (zero padded when there are many pages)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if p.cfg.MaxPages > 0 && len(matches) > p.cfg.MaxPages {
		p.logger.Warn("ocr.raster.truncated", "pages", len(matches), "max_pages", p.cfg.MaxPages)
		matches = matches[:p.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read page image: %w", err)
		}
		pages = append(pages, b)
	}
	return pages, nil
}
