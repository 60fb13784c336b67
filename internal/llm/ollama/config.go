package ollama

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config for the Ollama client.
type Config struct {
	BaseURL     string        // default http://localhost:11434
	Timeout     time.Duration // bound for one-shot generate calls
	PullTimeout time.Duration // bound for model pulls
	HTTPClient  *http.Client  // optional; must not set a Timeout if streams are long
}

// Client speaks the Ollama HTTP API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// Deadlines come from contexts; a client timeout would cut long streams.
		hc = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger,
	}
}
