package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
)

// maxErrorBody caps how much of a failed response is kept for error messages.
const maxErrorBody = 4 << 10

// SendJSON posts body to url and returns the raw response body.
// It does not assume any provider. Callers decide the URL and headers.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	resp, reqID, start, err := openJSON(ctx, client, url, body, headers, logger)
	if err != nil {
		return nil, 0, err
	}
	defer closeBody(resp.Body, reqID, logger)

	raw, err := io.ReadAll(resp.Body)
	logger = loggerOrDefault(logger)
	logger.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}

// OpenJSON posts body to url and hands back the live response for streaming.
// The caller owns resp.Body. Non-2xx responses are returned too, not as errors.
func OpenJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) (*http.Response, error) {
	resp, reqID, start, err := openJSON(ctx, client, url, body, headers, logger)
	if err != nil {
		return nil, err
	}
	loggerOrDefault(logger).Info("llm.http.stream_open",
		"req_id", reqID,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func openJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) (*http.Response, string, time.Time, error) {
	logger = loggerOrDefault(logger)
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, reqID, start, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, reqID, start, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("llm.http.request",
		"req_id", reqID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, reqID, start, err
	}
	return resp, reqID, start, nil
}

// ReadErrorBody drains up to maxErrorBody bytes of a failed response.
func ReadErrorBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return b
}

func closeBody(body io.ReadCloser, reqID string, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		loggerOrDefault(logger).Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
	}
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
