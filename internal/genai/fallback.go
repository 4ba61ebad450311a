package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/itmo-advisor-go/internal/metrics"
)

// FallbackGenerator tries each generator in order. Each one is retried with
// backoff on transient errors; quota, auth and exhausted retries move on to
// the next generator. Permanent errors stop the chain.
type FallbackGenerator struct {
	chain       []Generator
	retryConfig RetryConfig
	metrics     *metrics.Metrics
}

// NewFallbackGenerator wraps chain. Nil entries are dropped. m may be nil.
func NewFallbackGenerator(cfg RetryConfig, m *metrics.Metrics, chain ...Generator) *FallbackGenerator {
	gens := make([]Generator, 0, len(chain))
	for _, g := range chain {
		if g != nil {
			gens = append(gens, g)
		}
	}
	return &FallbackGenerator{chain: gens, retryConfig: cfg, metrics: m}
}

// Generate returns the first successful completion.
func (f *FallbackGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if f == nil || len(f.chain) == 0 {
		return "", errors.New("no generator configured")
	}

	var lastErr error
	for i, g := range f.chain {
		provider := g.Provider()
		start := time.Now()

		var text string
		err := WithRetry(ctx, f.retryConfig,
			func(attempt int, err error) {
				slog.DebugContext(ctx, "retrying completion",
					"provider", provider,
					"attempt", attempt,
					"error", err)
			},
			func() error {
				var genErr error
				text, genErr = g.Generate(ctx, req)
				return genErr
			})
		if err == nil {
			f.metrics.RecordLLM(provider.String(), "success", time.Since(start).Seconds())
			if i > 0 {
				slog.InfoContext(ctx, "completion served by fallback provider",
					"provider", provider,
					"primary", f.chain[0].Provider())
			}
			return text, nil
		}

		lastErr = err
		action := ClassifyError(err)
		f.metrics.RecordLLM(provider.String(), action.String(), time.Since(start).Seconds())
		slog.WarnContext(ctx, "completion failed",
			"provider", provider,
			"action", action,
			"error", err)

		if action == ActionFail || ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// Provider returns the primary provider type.
func (f *FallbackGenerator) Provider() Provider {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Len returns the number of generators in the chain.
func (f *FallbackGenerator) Len() int {
	if f == nil {
		return 0
	}
	return len(f.chain)
}

// Close closes every generator in the chain.
func (f *FallbackGenerator) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, g := range f.chain {
		if err := g.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
