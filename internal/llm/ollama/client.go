package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
)

var _ llm.Generator = (*Client)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := generateRequest{Model: model, Prompt: prompt, Stream: false}
	raw, status, err := llm.SendJSON(ctx, c.http, c.cfg.BaseURL+"/api/generate", body, nil, c.logger)
	if err != nil {
		if status != 0 {
			return "", statusError(model, status, raw)
		}
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("llm.generate.decode_error", "model", model, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", &llm.StatusError{StatusCode: status, Message: out.Error}
	}

	c.logger.Info("llm.generate.ok",
		"model", model,
		"chars", len(out.Response),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Response, nil
}

// GenerateStream opens a streaming completion. The returned stream must be closed.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string) (llm.Stream, error) {
	body := generateRequest{Model: model, Prompt: prompt, Stream: true}
	resp, err := llm.OpenJSON(ctx, c.http, c.cfg.BaseURL+"/api/generate", body, nil, c.logger)
	if err != nil {
		return nil, fmt.Errorf("ollama generate stream: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		raw := llm.ReadErrorBody(resp.Body)
		_ = resp.Body.Close()
		return nil, statusError(model, resp.StatusCode, raw)
	}
	return newStream(resp.Body, model, c.logger), nil
}

// Pull provisions model and blocks until the service reports completion.
func (c *Client) Pull(ctx context.Context, model string) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PullTimeout)
	defer cancel()

	c.logger.Info("llm.pull.start", "model", model)
	raw, status, err := llm.SendJSON(ctx, c.http, c.cfg.BaseURL+"/api/pull", pullRequest{Model: model, Stream: false}, nil, c.logger)
	if err != nil {
		c.logger.Error("llm.pull.failed", "model", model, "status", status, "error", err)
		if status != 0 {
			return statusError(model, status, raw)
		}
		return fmt.Errorf("ollama pull: %w", err)
	}
	var out pullResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Error != "" {
		return &llm.StatusError{StatusCode: status, Message: out.Error}
	}
	c.logger.Info("llm.pull.ok", "model", model, "status", out.Status, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &llm.StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// statusError maps a failed response; 404 means the model is missing.
func statusError(model string, status int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		msg = er.Error
	}
	if status == http.StatusNotFound {
		return &llm.ModelNotFoundError{Model: model, Detail: msg}
	}
	return &llm.StatusError{StatusCode: status, Message: msg}
}
