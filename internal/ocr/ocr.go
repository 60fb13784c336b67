package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// Strategy turns a PDF document into plain text.
type Strategy interface {
	Name() constants.StrategyID
	Extract(ctx context.Context, document []byte) (string, error)
}

// Config for the exec-based strategies. Zero values fall back to defaults.
type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Marker    string // binary name or absolute path; if empty -> "marker_single"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI, default 300
	MaxPages      int // 0 = no limit

	// WorkDir holds per-job scratch directories; empty means os.TempDir().
	WorkDir string
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Marker == "" {
		c.Marker = "marker_single"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// Registry is the closed set of strategies a job may name.
type Registry struct {
	strategies map[constants.StrategyID]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[constants.StrategyID]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// Lookup resolves a strategy id, tolerating case and surrounding spaces.
func (r *Registry) Lookup(id string) (Strategy, bool) {
	canon, _ := constants.CanonicalStrategy(id)
	s, ok := r.strategies[canon]
	return s, ok
}

// Names lists registered strategy ids in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

// scratch creates a private work directory holding document as in.pdf.
func scratch(workDir, pattern string, document []byte) (dir, pdfPath string, cleanup func(), err error) {
	dir, err = os.MkdirTemp(workDir, pattern)
	if err != nil {
		return "", "", nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }
	pdfPath = filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(pdfPath, document, 0o600); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("write document: %w", err)
	}
	return dir, pdfPath, cleanup, nil
}

func stderrOrErr(stderr []byte, err error) string {
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return truncate(s, 512)
	}
	return err.Error()
}
