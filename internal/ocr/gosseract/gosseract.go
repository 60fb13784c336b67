// Package gosseract recognizes page images through libtesseract bindings (cgo).
package gosseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer runs libtesseract in-process. A fresh client is used per page
// since gosseract clients are not safe for concurrent use.
type Recognizer struct {
	Lang        string
	TessdataDir string
}

func New(lang, tessdataDir string) *Recognizer {
	if lang == "" {
		lang = "eng"
	}
	return &Recognizer{Lang: lang, TessdataDir: tessdataDir}
}

func (r *Recognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if r.TessdataDir != "" {
		if err := client.SetTessdataPrefix(r.TessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(r.Lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}
