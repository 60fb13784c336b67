package llm

import (
	"context"
	"errors"
	"fmt"
)

// Chunk is one piece of streamed model output.
type Chunk struct {
	Text  string
	Final bool
}

// Stream is a finite, single-consumer sequence of chunks. Recv returns
// io.EOF once the final chunk has been delivered or the server stops sending.
// It cannot be restarted; Close releases the connection.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Generator is the text-generation service.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	GenerateStream(ctx context.Context, model, prompt string) (Stream, error)
	// Pull asks the service to provision model.
	Pull(ctx context.Context, model string) error
}

// ModelNotFoundError reports that the service does not have the requested model.
type ModelNotFoundError struct {
	Model  string
	Detail string
}

func (e *ModelNotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("model %q not found: %s", e.Model, e.Detail)
	}
	return fmt.Sprintf("model %q not found", e.Model)
}

// AsModelNotFound unwraps a *ModelNotFoundError from err.
func AsModelNotFound(err error) (*ModelNotFoundError, bool) {
	var nf *ModelNotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

// StatusError is a non-2xx answer other than model-not-found.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service status %d: %s", e.StatusCode, e.Message)
}
