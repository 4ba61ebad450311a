package genai

import (
	"context"
	"math/rand/v2"
	"time"
)

// CalculateBackoff calculates the delay before retry number attempt using
// the AWS Full Jitter algorithm:
//
//	delay = random(0, min(maxDelay, initialDelay * 2^(attempt-1)))
//
// Reference: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func CalculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initial <= 0 {
		return 0
	}

	delay := initial
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, maxDelay)
	if delay <= 0 {
		return 0
	}
	return rand.N(delay)
}

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithRetry runs fn until it succeeds, returns a non-retryable error or
// cfg.MaxAttempts is reached. onRetry, if set, is called before each retry.
// A server Retry-After hint replaces the computed backoff when it is longer.
func WithRetry(ctx context.Context, cfg RetryConfig, onRetry func(attempt int, err error), fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ClassifyError(err) != ActionRetry || attempt == attempts-1 {
			return err
		}

		delay := max(CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay), retryAfter(err))
		if !HasSufficientBudget(ctx, delay) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if err := Sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	return lastErr
}

// HasSufficientBudget checks if there's enough time remaining for an operation.
func HasSufficientBudget(ctx context.Context, required time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= required
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}
