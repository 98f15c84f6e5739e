// Package oracle is the single boundary through which the pipeline asks a
// language model for structured judgments. Every request names a schema and
// gets back the JSON object the model produced for it.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrNoResult marks any failure to obtain a usable structured result:
// exhausted transport retries, empty or malformed payloads, or a response
// that failed validation. Callers match it to apply their fallbacks.
var ErrNoResult = errors.New("oracle returned no usable result")

const systemPrompt = "You are an experienced trial attorney and legal analyst preparing civil jury instructions. Answer only through the requested structured output."

// Request is one structured call.
type Request struct {
	SchemaName   string
	Description  string
	Schema       *jsonschema.Schema
	Instructions string
	MaxTokens    int64
}

// Oracle produces the raw JSON object for a request.
type Oracle interface {
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, req Request) (json.RawMessage, error)

func (f Func) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func schemaJSON(s *jsonschema.Schema) string {
	if s == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
