package ocr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// MarkerStrategy converts the document to markdown with the marker CLI.
type MarkerStrategy struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewMarkerStrategy(cfg Config, runner Runner, logger *slog.Logger) *MarkerStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &MarkerStrategy{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (m *MarkerStrategy) Name() constants.StrategyID { return constants.StrategyMarker }

func (m *MarkerStrategy) Extract(ctx context.Context, document []byte) (string, error) {
	start := time.Now()
	dir, in, cleanup, err := scratch(m.cfg.WorkDir, "ocr-marker-*", document)
	if err != nil {
		return "", err
	}
	defer cleanup()

	outDir := filepath.Join(dir, "out")
	// marker_single <in.pdf> --output_dir <out> --output_format markdown
	args := []string{in, "--output_dir", outDir, "--output_format", "markdown"}
	if m.cfg.MaxPages > 0 {
		args = append(args, "--page_range", fmt.Sprintf("0-%d", m.cfg.MaxPages-1))
	}
	_, errb, err := m.runner.Run(ctx, m.cfg.Marker, args...)
	if err != nil {
		return "", fmt.Errorf("marker: %s", stderrOrErr(errb, err))
	}

	md, err := findMarkdown(outDir)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(md)
	if err != nil {
		return "", fmt.Errorf("read marker output: %w", err)
	}
	text := strings.TrimSpace(string(raw))

	m.logger.Info("ocr.marker.ok",
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var errFound = errors.New("found")

// findMarkdown returns the first .md file marker wrote under root.
func findMarkdown(root string) (string, error) {
	var hit string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			hit = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", fmt.Errorf("scan marker output: %w", err)
	}
	if hit == "" {
		return "", fmt.Errorf("marker produced no markdown output")
	}
	return hit, nil
}
