package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
)

// Error kinds recorded on failed jobs.
const (
	KindInvalidStrategy = "invalid_strategy"
	KindExtraction      = "extraction"
	KindGeneration      = "generation"
	KindCanceled        = "canceled"
	KindInternal        = "internal"
)

// InvalidStrategyError is returned before any work starts when the requested
// strategy is not registered.
type InvalidStrategyError struct {
	Strategy  string
	Available []string
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q: available: %s", e.Strategy, strings.Join(e.Available, ", "))
}

// Is lets transports treat it as bad input.
func (e *InvalidStrategyError) Is(target error) bool { return target == common.ErrInvalidInput }

// ExtractionError wraps a strategy failure.
type ExtractionError struct {
	Strategy string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction with %s failed: %v", e.Strategy, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationError wraps a streaming or tag/summary failure.
type GenerationError struct {
	Model   string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (model %s): %v", e.Message, e.Model, e.Err)
	}
	return fmt.Sprintf("%s (model %s)", e.Message, e.Model)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrorKind classifies err for storage and transports.
func ErrorKind(err error) string {
	var (
		inv *InvalidStrategyError
		ext *ExtractionError
		gen *GenerationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inv):
		return KindInvalidStrategy
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &ext):
		return KindExtraction
	case errors.As(err, &gen):
		return KindGeneration
	case errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
