package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"paperboy/internal/config"
)

// Gemini judges prompts through the Gemini API using native structured
// output, so responses already arrive as JSON matching the schema.
type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewGemini creates a Gemini-backed judge. The role picks which configured
// model handles the calls: the cheap scorer model for interest batches, the
// stronger review model for deep reads.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, role Role) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY or oracle.gemini.api_key in config")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.ScorerModel
	if role == RoleReviewer {
		model = cfg.ReviewModel
	}

	return &Gemini{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (g *Gemini) Judge(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(g.temperature)
	}
	if req.Schema != nil {
		cfg.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classify("gemini", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, &Fault{Kind: FaultMalformed, Provider: "gemini", Err: fmt.Errorf("empty response from model")}
	}

	cleaned := cleanJSONResponse(text)
	if !json.Valid([]byte(cleaned)) {
		return nil, &Fault{Kind: FaultMalformed, Provider: "gemini", Err: fmt.Errorf("response is not valid JSON")}
	}

	return json.RawMessage(cleaned), nil
}

// toGenaiSchema translates the neutral schema into the SDK's native form for
// structured output.
func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeString:
		out.Type = genai.TypeString
	case TypeInteger:
		out.Type = genai.TypeInteger
	case TypeNumber:
		out.Type = genai.TypeNumber
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}

	return out
}
