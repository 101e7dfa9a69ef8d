// Package oracle abstracts the external judgment service the funnel leans
// on. The funnel sees a single capability: turn a prompt into a structured
// JSON verdict. Provider backends (Gemini, Claude) sit behind the Judge
// interface and are selected at configuration time.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Judge is the one operation the funnel needs from an oracle: convert a
// prompt into a structured result matching the requested schema.
type Judge interface {
	Judge(ctx context.Context, req Request) (json.RawMessage, error)
}

// Request describes a single judgment.
type Request struct {
	Prompt string  // Full prompt text, persona included
	Schema *Schema // Expected response shape; nil means free-form JSON
}

// Type enumerates the schema value types the funnel's verdicts use.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
)

// Schema is a provider-neutral description of the JSON a judgment must
// return. Backends translate it into their native structured-output form.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
}

func (s *Schema) jsonMap() map[string]any {
	m := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.jsonMap()
		}
		m["properties"] = props
	}
	if s.Items != nil {
		m["items"] = s.Items.jsonMap()
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

// JSONSchema renders the schema as an indented JSON Schema document, used by
// backends without native structured-output support.
func (s *Schema) JSONSchema() string {
	data, err := json.MarshalIndent(s.jsonMap(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FaultKind classifies oracle failures for retry decisions.
type FaultKind int

const (
	FaultRateLimited FaultKind = iota // 429-style throttling, retryable
	FaultServer                       // transient 5xx, retryable
	FaultMalformed                    // response with the wrong shape, not retryable
)

func (k FaultKind) String() string {
	switch k {
	case FaultRateLimited:
		return "rate_limited"
	case FaultServer:
		return "server_error"
	case FaultMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Fault is a classified oracle failure.
type Fault struct {
	Kind     FaultKind
	Provider string
	Err      error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s oracle %s: %v", f.Provider, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s oracle %s", f.Provider, f.Kind)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsRetryable reports whether err is a transient oracle fault worth another
// attempt. Malformed responses and unclassified errors are not.
func IsRetryable(err error) bool {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind == FaultRateLimited || fault.Kind == FaultServer
	}
	return false
}

// classify maps a provider error onto the fault taxonomy. Context
// cancellation passes through untouched so callers can distinguish an
// interrupted run from a failing oracle. Errors matching no known transient
// pattern stay unclassified and therefore non-retryable.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		return &Fault{Kind: FaultRateLimited, Provider: provider, Err: err}
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") || strings.Contains(msg, "unavailable"):
		return &Fault{Kind: FaultServer, Provider: provider, Err: err}
	default:
		return fmt.Errorf("%s oracle call failed: %w", provider, err)
	}
}

// cleanJSONResponse strips markdown fences and surrounding prose that models
// sometimes wrap around their JSON.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
