// Package genai generates chat answers with hosted LLMs.
//
// Architecture:
//   - OpenAI and any OpenAI-compatible endpoint: github.com/openai/openai-go/v3
//   - Gemini: google.golang.org/genai (official SDK)
//
// Fallback Strategy (2-layer):
//  1. Provider Retry: the same provider is retried with full-jitter backoff
//  2. Provider Chain: next provider in ITMO_LLM_PROVIDERS
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderOpenAI is the OpenAI chat completions API or a compatible endpoint.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Request is one completion: a system prompt and a single user turn.
type Request struct {
	System      string
	User        string
	MaxTokens   int     // 0 uses the generator default
	Temperature float64 // 0 uses the generator default
}

// Generator produces one completion per call.
type Generator interface {
	// Generate returns the trimmed completion text.
	Generate(ctx context.Context, req Request) (string, error)
	// Provider returns the provider type for metrics.
	Provider() Provider
	// Close releases any resources held by the generator.
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string // OpenAI only; empty uses the SDK default
	Model   string
}

// LLMConfig holds configuration for all LLM providers.
type LLMConfig struct {
	// Providers is the ordered list of providers to try. Providers without
	// an API key are skipped.
	Providers []Provider

	OpenAI ProviderConfig
	Gemini ProviderConfig

	MaxTokens   int
	Temperature float64

	RetryConfig RetryConfig
}

// Defaults.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7

	DefaultMaxRetryAttempts  = 3
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 4 * time.Second
)

// HasProvider returns true if the specified provider is configured with an API key.
func (c *LLMConfig) HasProvider(p Provider) bool {
	switch p {
	case ProviderOpenAI:
		return c.OpenAI.APIKey != ""
	case ProviderGemini:
		return c.Gemini.APIKey != ""
	default:
		return false
	}
}

// ConfiguredProviders returns the list of providers with configured API keys,
// in the order specified by c.Providers. Duplicates are dropped.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	result := make([]Provider, 0, len(c.Providers))
	seen := make(map[Provider]bool, len(c.Providers))
	for _, p := range c.Providers {
		if c.HasProvider(p) && !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
