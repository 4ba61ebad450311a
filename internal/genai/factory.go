package genai

import (
	"context"
	"log/slog"

	"github.com/garyellow/itmo-advisor-go/internal/metrics"
)

// NewGenerator builds the provider chain described by cfg. It returns nil,
// nil when no listed provider has an API key; callers treat a nil Generator
// as "LLM disabled".
func NewGenerator(ctx context.Context, cfg LLMConfig, m *metrics.Metrics) (Generator, error) {
	var chain []Generator

	for _, p := range cfg.ConfiguredProviders() {
		switch p {
		case ProviderOpenAI:
			chain = append(chain, newOpenAIGenerator(cfg.OpenAI, cfg.MaxTokens, cfg.Temperature))
		case ProviderGemini:
			g, err := newGeminiGenerator(ctx, cfg.Gemini, cfg.MaxTokens, cfg.Temperature)
			if err != nil {
				slog.WarnContext(ctx, "failed to create gemini generator", "error", err)
				continue
			}
			chain = append(chain, g)
		}
	}

	if len(chain) == 0 {
		slog.InfoContext(ctx, "no LLM provider configured, answers use retrieved snippets only")
		return nil, nil //nolint:nilnil // Intentional: generation disabled
	}

	slog.InfoContext(ctx, "generator configured",
		"primary", chain[0].Provider(),
		"chainSize", len(chain))
	return NewFallbackGenerator(cfg.RetryConfig, m, chain...), nil
}

// DefaultLLMConfig returns a default LLM configuration.
// API keys must be provided separately.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers:   []Provider{ProviderOpenAI, ProviderGemini},
		OpenAI:      ProviderConfig{Model: DefaultOpenAIModel},
		Gemini:      ProviderConfig{Model: DefaultGeminiModel},
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		RetryConfig: DefaultRetryConfig(),
	}
}
