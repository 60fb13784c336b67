package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/ocr-enricher/internal/llm"
)

// TagsDelimiter separates the main output from the tags/summary block.
const TagsDelimiter = "\n\nTags and Summary:\n"

var tagSummarySchema = map[string]any{
	"type":     "object",
	"required": []string{"tags", "summary"},
	"properties": map[string]any{
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"summary": map[string]any{"type": "string"},
	},
}

type tagSummary struct {
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// TagSummarizer makes the single non-streaming tags/summary request.
type TagSummarizer struct {
	gen    llm.Generator
	prov   *Provisioner
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewTagSummarizer(gen llm.Generator, prov *Provisioner, logger *slog.Logger) *TagSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := llm.CompileSchema(tagSummarySchema)
	if err != nil {
		// static schema; only a programming error gets here
		panic(err)
	}
	return &TagSummarizer{gen: gen, prov: prov, schema: schema, logger: logger}
}

// Generate asks model to answer prompt. A missing model triggers one background
// pull and the call still fails; there is no retry.
func (t *TagSummarizer) Generate(ctx context.Context, prompt, model string) (string, error) {
	start := time.Now()
	out, err := t.gen.Generate(ctx, model, prompt)
	if err != nil {
		if _, ok := llm.AsModelNotFound(err); ok && t.prov != nil {
			t.logger.Warn("core.tags.model_missing", "model", model)
			t.prov.Request(model)
		}
		t.logger.Error("core.tags.failed", "model", model, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", &GenerationError{Model: model, Message: "failed to generate tags and summary", Err: err}
	}
	t.logger.Info("core.tags.ok", "model", model, "chars", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return t.render(out), nil
}

// render formats a structured {"tags","summary"} answer; anything else passes through.
func (t *TagSummarizer) render(out string) string {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "{") {
		return out
	}
	if err := llm.ValidateJSON(t.schema, []byte(trimmed)); err != nil {
		t.logger.Debug("core.tags.unstructured", "error", err)
		return out
	}
	var ts tagSummary
	if err := json.Unmarshal([]byte(trimmed), &ts); err != nil {
		return out
	}
	return "Tags: " + strings.Join(ts.Tags, ", ") + "\nSummary: " + strings.TrimSpace(ts.Summary)
}
