package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"paperboy/internal/config"
)

// judgeFunc adapts a function to the Judge interface for tests.
type judgeFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f judgeFunc) Judge(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      FaultKind
		isFault   bool
	}{
		{"rate limit status code", errors.New("googleapi: Error 429: quota exceeded"), true, FaultRateLimited, true},
		{"rate limit phrase", errors.New("request failed: rate limit reached"), true, FaultRateLimited, true},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), true, FaultRateLimited, true},
		{"internal server error", errors.New("API error 500: internal"), true, FaultServer, true},
		{"service unavailable", errors.New("503 service unavailable"), true, FaultServer, true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true, FaultServer, true},
		{"bad request", errors.New("400 invalid argument"), false, 0, false},
		{"auth failure", errors.New("401 unauthorized"), false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify("gemini", tt.err)
			if classified == nil {
				t.Fatal("classify returned nil for non-nil error")
			}

			if got := IsRetryable(classified); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}

			var fault *Fault
			if errors.As(classified, &fault) != tt.isFault {
				t.Fatalf("fault presence = %v, want %v", !tt.isFault, tt.isFault)
			}
			if tt.isFault && fault.Kind != tt.kind {
				t.Errorf("fault kind = %v, want %v", fault.Kind, tt.kind)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify("gemini", nil); err != nil {
		t.Errorf("classify(nil) = %v, want nil", err)
	}
}

func TestClassifyContextCancellation(t *testing.T) {
	err := classify("claude", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled to pass through, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("context cancellation should not be retryable")
	}
}

func TestClassifyPreservesCause(t *testing.T) {
	cause := errors.New("googleapi: Error 429")
	classified := classify("gemini", cause)
	if !errors.Is(classified, cause) {
		t.Error("classified fault should unwrap to the original error")
	}
}

func TestIsRetryableWrappedFault(t *testing.T) {
	fault := &Fault{Kind: FaultServer, Provider: "gemini", Err: errors.New("503")}
	wrapped := fmt.Errorf("interest batch 2: %w", fault)
	if !IsRetryable(wrapped) {
		t.Error("retryability should survive error wrapping")
	}
}

func TestFaultError(t *testing.T) {
	fault := &Fault{Kind: FaultMalformed, Provider: "claude", Err: errors.New("bad shape")}
	msg := fault.Error()
	if !strings.Contains(msg, "claude") || !strings.Contains(msg, "malformed_response") {
		t.Errorf("unexpected fault message: %q", msg)
	}
	if IsRetryable(fault) {
		t.Error("malformed responses must not be retried")
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"whitespace", "  {\"a\":1}\n\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.input); got != tt.want {
				t.Errorf("cleanJSONResponse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSchemaJSONSchema(t *testing.T) {
	schema := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"scores": {
				Type: TypeArray,
				Items: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"arxiv_id": {Type: TypeString},
						"score":    {Type: TypeInteger, Description: "0, 1 or 2"},
					},
					Required: []string{"arxiv_id", "score"},
				},
			},
		},
		Required: []string{"scores"},
	}

	rendered := schema.JSONSchema()

	var parsed map[string]any
	if err := json.Unmarshal([]byte(rendered), &parsed); err != nil {
		t.Fatalf("rendered schema is not valid JSON: %v", err)
	}
	if parsed["type"] != "object" {
		t.Errorf("top-level type = %v, want object", parsed["type"])
	}
	if !strings.Contains(rendered, "arxiv_id") {
		t.Error("rendered schema should list nested properties")
	}
	if !strings.Contains(rendered, "0, 1 or 2") {
		t.Error("rendered schema should carry property descriptions")
	}
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"ok":true}`), nil
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	result, err := judge.Judge(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("unexpected result: %s", result)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetryRecoversFromTransientFaults(t *testing.T) {
	calls := 0
	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		calls++
		if calls < 3 {
			return nil, &Fault{Kind: FaultRateLimited, Provider: "gemini", Err: errors.New("429")}
		}
		return json.RawMessage(`{}`), nil
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	if _, err := judge.Judge(context.Background(), Request{Prompt: "p"}); err != nil {
		t.Fatalf("Judge() error = %v, want recovery on third attempt", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		calls++
		return nil, &Fault{Kind: FaultServer, Provider: "gemini", Err: errors.New("503")}
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	_, err := judge.Judge(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != FaultServer {
		t.Errorf("expected the last fault to surface, got %v", err)
	}
}

func TestWithRetryDoesNotRetryMalformed(t *testing.T) {
	calls := 0
	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		calls++
		return nil, &Fault{Kind: FaultMalformed, Provider: "claude", Err: errors.New("not json")}
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	if _, err := judge.Judge(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected malformed fault to surface")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (malformed must not be retried)", calls)
	}
}

func TestWithRetryDoesNotRetryUnclassified(t *testing.T) {
	calls := 0
	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		calls++
		return nil, errors.New("401 unauthorized")
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	if _, err := judge.Judge(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error to surface")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	judge := WithRetry(judgeFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
		return nil, &Fault{Kind: FaultRateLimited, Provider: "gemini", Err: errors.New("429")}
	}), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour})

	_, err := judge.Judge(ctx, Request{Prompt: "p"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled during backoff, got %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.Oracle{Provider: "palm"}, RoleScorer)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "palm") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), config.Oracle{Provider: "gemini"}, RoleScorer); err == nil {
		t.Error("gemini without API key should fail")
	}
	if _, err := New(context.Background(), config.Oracle{Provider: "claude"}, RoleReviewer); err == nil {
		t.Error("claude without API key should fail")
	}
}
