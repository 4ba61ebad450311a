package scraper

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryWithBackoff calls fn until it succeeds, returns a permanent error, or
// maxRetries retries are spent. maxRetries of 0 means a single call.
//
// The delay before retry n is initialDelay * 2^(n-1) with ±25% jitter:
//
//	retry 1: ~2s (1.5s - 2.5s)
//	retry 2: ~4s (3s - 5s)
//	retry 3: ~8s (6s - 10s)
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}
		if attempt == maxRetries {
			break
		}

		if err := Sleep(ctx, backoff(attempt, initialDelay)); err != nil {
			return err
		}
	}

	return lastErr
}

func backoff(attempt int, initialDelay time.Duration) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt)))
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(half))
	if err != nil {
		return delay
	}
	return delay - delay/4 + time.Duration(jitter.Int64())
}

// Sleep waits for the specified duration, respecting context cancellation
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
