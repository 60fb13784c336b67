package ocr

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

var samplePDF = []byte("%PDF-1.7\n%fake\n")

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(
		NewMarkerStrategy(Config{}, &fakeRunner{}, nil),
		NewTesseractStrategy(nil, nil, nil),
	)

	s, ok := reg.Lookup("  Tesseract ")
	require.True(t, ok)
	assert.Equal(t, constants.StrategyTesseract, s.Name())

	_, ok = reg.Lookup("abbyy")
	assert.False(t, ok)
	assert.Equal(t, []string{"marker", "tesseract"}, reg.Names())
}

func TestPdftoppmRasterizer(t *testing.T) {
	r := &fakeRunner{fn: func(name string, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		in := args[len(args)-2]
		body, err := os.ReadFile(in)
		if err != nil || string(body) != string(samplePDF) {
			return nil, []byte("bad input"), errors.New("exit status 1")
		}
		_ = os.WriteFile(prefix+"-2.png", []byte("p2"), 0o600)
		_ = os.WriteFile(prefix+"-1.png", []byte("p1"), 0o600)
		return nil, nil, nil
	}}
	rast := NewPdftoppmRasterizer(Config{WorkDir: t.TempDir()}, r, nil)

	pages, err := rast.Rasterize(context.Background(), samplePDF)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "p1", string(pages[0]))
	assert.Equal(t, "p2", string(pages[1]))

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pdftoppm", calls[0].name)
	assert.Equal(t, []string{"-r", "300", "-png"}, calls[0].args[:3])
}

func TestPdftoppmRasterizerMaxPages(t *testing.T) {
	r := &fakeRunner{fn: func(_ string, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for _, n := range []string{"1", "2", "3"} {
			_ = os.WriteFile(prefix+"-"+n+".png", []byte("p"+n), 0o600)
		}
		return nil, nil, nil
	}}
	rast := NewPdftoppmRasterizer(Config{WorkDir: t.TempDir(), MaxPages: 2, DPI: 150}, r, nil)

	pages, err := rast.Rasterize(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, "150", r.Calls()[0].args[1])
}

func TestPdftoppmRasterizerFailure(t *testing.T) {
	r := &fakeRunner{fn: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
	}}
	rast := NewPdftoppmRasterizer(Config{WorkDir: t.TempDir()}, r, nil)

	_, err := rast.Rasterize(context.Background(), samplePDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailer dictionary")
}

func TestPdftoppmRasterizerNoImages(t *testing.T) {
	rast := NewPdftoppmRasterizer(Config{WorkDir: t.TempDir()}, &fakeRunner{}, nil)
	_, err := rast.Rasterize(context.Background(), samplePDF)
	assert.ErrorContains(t, err, "no images")
}

func TestTesseractCLI(t *testing.T) {
	var seen string
	r := &fakeRunner{fn: func(_ string, args []string) ([]byte, []byte, error) {
		b, _ := os.ReadFile(args[0])
		seen = string(b)
		return []byte("hello world\n"), nil, nil
	}}
	cli := NewTesseractCLI(Config{WorkDir: t.TempDir(), TesseractLang: "deu", TessdataDir: "/opt/tessdata"}, r, nil)

	out, err := cli.Recognize(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
	assert.Equal(t, "png-bytes", seen)

	args := r.Calls()[0].args
	assert.Equal(t, []string{"stdout", "-l", "deu", "--tessdata-dir", "/opt/tessdata"}, args[1:])
	_, statErr := os.Stat(args[0])
	assert.True(t, os.IsNotExist(statErr), "page file should be removed")
}

type pagesRasterizer [][]byte

func (p pagesRasterizer) Rasterize(context.Context, []byte) ([][]byte, error) { return p, nil }

type mapRecognizer map[string]string

func (m mapRecognizer) Recognize(_ context.Context, png []byte) (string, error) {
	if txt, ok := m[string(png)]; ok {
		return txt, nil
	}
	return "", errors.New("unreadable")
}

func TestTesseractStrategyJoinsPages(t *testing.T) {
	s := NewTesseractStrategy(
		pagesRasterizer{[]byte("a"), []byte("bad"), []byte("b")},
		mapRecognizer{"a": "First  page\r\n", "b": "Second\tpage"},
		nil,
	)

	out, err := s.Extract(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "First page"+PageBreak+"Second page", out)
}

func TestTesseractStrategyAllPagesFail(t *testing.T) {
	s := NewTesseractStrategy(pagesRasterizer{[]byte("x")}, mapRecognizer{}, nil)
	_, err := s.Extract(context.Background(), samplePDF)
	assert.ErrorContains(t, err, "no page could be recognized")
}

func TestTesseractStrategyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewTesseractStrategy(pagesRasterizer{[]byte("a")}, mapRecognizer{"a": "x"}, nil)
	_, err := s.Extract(ctx, samplePDF)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkerStrategy(t *testing.T) {
	r := &fakeRunner{fn: func(_ string, args []string) ([]byte, []byte, error) {
		outDir := args[2]
		dir := filepath.Join(outDir, "in")
		_ = os.MkdirAll(dir, 0o755)
		_ = os.WriteFile(filepath.Join(dir, "in_meta.json"), []byte("{}"), 0o600)
		_ = os.WriteFile(filepath.Join(dir, "in.md"), []byte("# Title\n\nBody text\n"), 0o600)
		return nil, nil, nil
	}}
	m := NewMarkerStrategy(Config{WorkDir: t.TempDir()}, r, nil)

	out, err := m.Extract(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody text", out)

	c := r.Calls()[0]
	assert.Equal(t, "marker_single", c.name)
	assert.Equal(t, []string{"--output_dir"}, c.args[1:2])
	assert.Equal(t, []string{"--output_format", "markdown"}, c.args[3:5])
}

func TestMarkerStrategyNoOutput(t *testing.T) {
	m := NewMarkerStrategy(Config{WorkDir: t.TempDir()}, &fakeRunner{}, nil)
	_, err := m.Extract(context.Background(), samplePDF)
	assert.ErrorContains(t, err, "no markdown")
}

func TestMarkerStrategyCommandFails(t *testing.T) {
	r := &fakeRunner{fn: func(string, []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("exit status 2")
	}}
	m := NewMarkerStrategy(Config{WorkDir: t.TempDir()}, r, nil)
	_, err := m.Extract(context.Background(), samplePDF)
	assert.ErrorContains(t, err, "marker: exit status 2")
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	out, _, err := NewExecRunner(nil).Run(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(out))
}
