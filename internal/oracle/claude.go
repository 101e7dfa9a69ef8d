package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"paperboy/internal/config"
)

// Claude judges prompts through the Anthropic API. The SDK has no native
// structured output for this flow, so the expected schema is rendered into
// the system prompt and the response is cleaned before parsing.
type Claude struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaude creates a Claude-backed judge for the given role.
func NewClaude(cfg config.ClaudeConfig, role Role) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude API key is required. Set ANTHROPIC_API_KEY or oracle.claude.api_key in config")
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	model := cfg.ScorerModel
	if role == RoleReviewer {
		model = cfg.ReviewModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Claude{
		client:    &client,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

func (c *Claude) Judge(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	system := "You are a precise JSON responder. Always respond with valid JSON only, no markdown fences, no explanation."
	if req.Schema != nil {
		system += "\nThe response must conform to this JSON schema:\n" + req.Schema.JSONSchema()
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, classify("claude", err)
	}

	if len(resp.Content) == 0 {
		return nil, &Fault{Kind: FaultMalformed, Provider: "claude", Err: fmt.Errorf("empty response from model")}
	}

	cleaned := cleanJSONResponse(resp.Content[0].Text)
	if !json.Valid([]byte(cleaned)) {
		return nil, &Fault{Kind: FaultMalformed, Provider: "claude", Err: fmt.Errorf("response is not valid JSON")}
	}

	return json.RawMessage(cleaned), nil
}
