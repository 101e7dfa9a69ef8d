package oracle

import (
	"context"
	"fmt"

	"paperboy/internal/config"
)

// Role selects which configured model a judge uses. Interest scoring runs on
// the cheap scorer model; deep reads and selection run on the review model.
type Role int

const (
	RoleScorer Role = iota
	RoleReviewer
)

// New builds the configured provider backend for the given role and wraps it
// with the retry policy. The returned judge is what the funnel stages hold.
func New(ctx context.Context, cfg config.Oracle, role Role) (Judge, error) {
	var (
		judge Judge
		err   error
	)
	switch cfg.Provider {
	case "gemini":
		judge, err = NewGemini(ctx, cfg.Gemini, role)
	case "claude":
		judge, err = NewClaude(cfg.Claude, role)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (supported: gemini, claude)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(judge, RetryPolicy{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoffDuration(),
	}), nil
}
