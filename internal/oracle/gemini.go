package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModels is the part of the genai client the oracle uses.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle answers requests with JSON-mode generation. The schema travels
// in the prompt.
type GeminiOracle struct {
	models    GeminiModels
	model     string
	maxTokens int64
}

func NewGeminiOracle(ctx context.Context, apiKey, model string, maxTokens int64) (*GeminiOracle, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewGeminiOracleWithModels(client.Models, model, maxTokens), nil
}

func NewGeminiOracleWithModels(m GeminiModels, model string, maxTokens int64) *GeminiOracle {
	if model == "" {
		model = DefaultGeminiModel
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &GeminiOracle{models: m, model: model, maxTokens: maxTokens}
}

func (g *GeminiOracle) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	prompt := fmt.Sprintf("%s\n\nRespond with a single JSON object for %q (%s) matching this JSON schema:\n%s",
		req.Instructions, req.SchemaName, req.Description, schemaJSON(req.Schema))
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   int32(maxTokens),
		})
	if err != nil {
		return nil, err
	}
	s := stripCodeFences(resp.Text())
	if s == "" {
		return nil, nil
	}
	return json.RawMessage(s), nil
}
