package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiGenerator uses the Gemini API through the official SDK.
type geminiGenerator struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

// newGeminiGenerator returns nil, nil when apiKey is empty.
func newGeminiGenerator(ctx context.Context, cfg ProviderConfig, maxTokens int, temperature float64) (*geminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, nil //nolint:nilnil // Intentional: provider disabled when no API key
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiGenerator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Generate sends the user turn with the system prompt as system instruction.
func (g *geminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens, temperature := resolveSampling(req, g.maxTokens, g.temperature)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens), //nolint:gosec // bounded by config validation
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.User), config)
	duration := time.Since(start)
	if err != nil {
		return "", WrapError(fmt.Errorf("generate content failed: %w", err), ProviderGemini)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", WrapError(errEmptyCompletion, ProviderGemini)
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "chat completion finished",
			"provider", ProviderGemini,
			"model", g.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", duration.Milliseconds())
	}
	return text, nil
}

// Provider returns the provider type for this generator.
func (g *geminiGenerator) Provider() Provider {
	return ProviderGemini
}

// Close releases resources. genai.Client does not require explicit cleanup.
func (g *geminiGenerator) Close() error {
	return nil
}
