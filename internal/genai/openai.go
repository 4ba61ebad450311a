package genai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// errEmptyCompletion is returned when the model answers with no text.
var errEmptyCompletion = errors.New("empty completion")

// openaiGenerator talks to the OpenAI chat completions API or any
// compatible endpoint set through BaseURL.
type openaiGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// newOpenAIGenerator returns nil when apiKey is empty.
func newOpenAIGenerator(cfg ProviderConfig, maxTokens int, temperature float64) *openaiGenerator {
	if cfg.APIKey == "" {
		return nil
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are driven by WithRetry so that they share one budget
		// with provider fallback.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &openaiGenerator{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate sends the system prompt and the user turn as one chat completion.
func (g *openaiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens, temperature := resolveSampling(req, g.maxTokens, g.temperature)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	duration := time.Since(start)
	if err != nil {
		return "", WrapError(err, ProviderOpenAI)
	}

	if len(resp.Choices) == 0 {
		return "", WrapError(errEmptyCompletion, ProviderOpenAI)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", WrapError(errEmptyCompletion, ProviderOpenAI)
	}

	slog.DebugContext(ctx, "chat completion finished",
		"provider", ProviderOpenAI,
		"model", g.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", duration.Milliseconds())
	return text, nil
}

// Provider returns the provider type for this generator.
func (g *openaiGenerator) Provider() Provider {
	return ProviderOpenAI
}

// Close releases resources. The openai-go client needs no cleanup.
func (g *openaiGenerator) Close() error {
	return nil
}

// resolveSampling applies generator defaults to unset request fields.
func resolveSampling(req Request, maxTokens int, temperature float64) (int, float64) {
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	return maxTokens, temperature
}
