package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = string(anthropic.ModelClaudeSonnet4_20250514)

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicOracle answers each request with a forced tool call whose input
// schema is the request schema.
type AnthropicOracle struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

func NewAnthropicOracle(apiKey, model string, maxTokens int64) (*AnthropicOracle, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return NewAnthropicOracleWithClient(newAnthropicClient(apiKey), model, maxTokens), nil
}

func NewAnthropicOracleWithClient(m AnthropicMessager, model string, maxTokens int64) *AnthropicOracle {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicOracle{messages: m, model: model, maxTokens: maxTokens}
}

func (a *AnthropicOracle) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	props, required := propertiesOf(req.Schema)
	tool := anthropic.ToolParam{
		Name: req.SchemaName,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   required,
		},
	}
	if req.Description != "" {
		tool.Description = anthropic.String(req.Description)
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Instructions))},
		Tools:       []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice:  anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: req.SchemaName}},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, b := range resp.Content {
		switch b.Type {
		case "tool_use":
			if b.Name == req.SchemaName && len(b.Input) > 0 {
				return b.Input, nil
			}
		case "text":
			text.WriteString(b.Text)
		}
	}
	// Some responses answer in prose JSON instead of calling the tool.
	if s := stripCodeFences(text.String()); s != "" {
		return json.RawMessage(s), nil
	}
	return nil, nil
}
