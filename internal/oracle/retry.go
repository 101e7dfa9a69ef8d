package oracle

import (
	"context"
	"encoding/json"
	"time"

	"paperboy/internal/logger"
)

// RetryPolicy bounds the automatic retries wrapped around every backend.
type RetryPolicy struct {
	MaxAttempts    int           // Total attempts, first call included
	InitialBackoff time.Duration // Wait before the second attempt, doubled after each failure
}

type retryingJudge struct {
	inner  Judge
	policy RetryPolicy
}

// WithRetry wraps a judge with exponential backoff on retryable faults. Rate
// limits and transient server errors are retried up to the policy's attempt
// budget; malformed responses and unclassified errors surface immediately.
func WithRetry(inner Judge, policy RetryPolicy) Judge {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = 2 * time.Second
	}
	return &retryingJudge{inner: inner, policy: policy}
}

func (r *retryingJudge) Judge(ctx context.Context, req Request) (json.RawMessage, error) {
	backoff := r.policy.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result, err := r.inner.Judge(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == r.policy.MaxAttempts {
			break
		}

		logger.Warn("Oracle call failed, backing off",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"backoff", backoff.String(),
			"error", err.Error())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}
