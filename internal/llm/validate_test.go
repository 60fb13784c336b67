package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"tags"},
		"properties": map[string]any{
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}

	require.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"tags":["a","b"]}`)))
	assert.ErrorContains(t, ValidateJSONAgainstSchema(schema, []byte(`{"tags":"a"}`)), "does not match schema")
	assert.ErrorContains(t, ValidateJSONAgainstSchema(schema, []byte(`not json`)), "unmarshal data")
}

func TestModelNotFoundError(t *testing.T) {
	err := error(&ModelNotFoundError{Model: "llama3"})
	assert.Equal(t, `model "llama3" not found`, err.Error())

	nf, ok := AsModelNotFound(fmt.Errorf("stream: %w", err))
	require.True(t, ok)
	assert.Equal(t, "llama3", nf.Model)
}
