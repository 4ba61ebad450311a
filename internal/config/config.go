// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and validates them for the server or the operator CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Index backends accepted by ITMO_INDEX_BACKEND.
var validBackends = []string{"auto", "chromem", "dense"}

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode validates everything the HTTP server needs.
	ServerMode ValidationMode = iota
	// CLIMode skips server-only settings.
	CLIMode
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string

	// Data Configuration
	DataDir  string   // programs/ and advisor.db live here
	Programs []string // program ids in catalog order

	// Retrieval Configuration
	IndexBackend   string
	SearchMinScore float64
	SearchTopK     int

	// Recommendation Configuration
	SubjectThreshold float64
	TablesFile       string // optional YAML override of the keyword tables

	// History Configuration
	HistoryLimit     int
	HistoryRetention int

	// LLM Configuration
	LLMProviders   []string // tried in order
	OpenAIAPIKey   string
	OpenAIBaseURL  string // any OpenAI-compatible endpoint
	LLMModel       string
	GeminiAPIKey   string
	GeminiModel    string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration

	// Per-user LLM limits
	UserLLMPerMinute float64
	UserLLMBurst     int

	// Scraper Configuration
	ScraperTimeout    time.Duration
	ScraperMaxRetries int
	ScraperBaseURL    string

	// R2 Snapshot
	R2Enabled         bool
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2SnapshotKey     string
	R2LockKey         string
	R2PollInterval    time.Duration // 0 disables polling for new bundles

	// Sentry
	SentryDSN              string
	SentryEnvironment      string
	SentryRelease          string
	SentrySampleRate       float64
	SentryTracesSampleRate float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // empty = no auth

	// AdminToken guards mutating API endpoints; empty = open
	AdminToken string
}

// Load reads configuration for the server.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from environment variables and validates
// it for mode. It attempts to load a .env file first.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, ""),

		DataDir:  getEnv(EnvDataDir, getDefaultDataDir()),
		Programs: getListEnv(EnvPrograms, []string{"ai", "ai_product"}),

		IndexBackend:   strings.ToLower(getEnv(EnvIndexBackend, "auto")),
		SearchMinScore: getFloatEnv(EnvSearchMinScore, 0.1),
		SearchTopK:     getIntEnv(EnvSearchTopK, 5),

		SubjectThreshold: getFloatEnv(EnvSubjectThreshold, 0.2),
		TablesFile:       getEnv(EnvTablesFile, ""),

		HistoryLimit:     getIntEnv(EnvHistoryLimit, 10),
		HistoryRetention: getIntEnv(EnvHistoryRetention, 50),

		LLMProviders:   getListEnv(EnvLLMProviders, []string{ProviderOpenAI, ProviderGemini}),
		OpenAIAPIKey:   getEnv(EnvOpenAIAPIKey, ""),
		OpenAIBaseURL:  getEnv(EnvOpenAIBaseURL, ""),
		LLMModel:       getEnv(EnvLLMModel, "gpt-4o-mini"),
		GeminiAPIKey:   getEnv(EnvGeminiAPIKey, ""),
		GeminiModel:    getEnv(EnvGeminiModel, "gemini-2.5-flash"),
		LLMMaxTokens:   getIntEnv(EnvLLMMaxTokens, 1000),
		LLMTemperature: getFloatEnv(EnvLLMTemperature, 0.7),
		LLMTimeout:     getDurationEnv(EnvLLMTimeout, LLMRequest),

		UserLLMPerMinute: getFloatEnv(EnvUserLLMPerMinute, 6),
		UserLLMBurst:     getIntEnv(EnvUserLLMBurst, 3),

		ScraperTimeout:    getDurationEnv(EnvScraperTimeout, ScraperRequest),
		ScraperMaxRetries: getIntEnv(EnvScraperMaxRetries, 3),
		ScraperBaseURL:    getEnv(EnvScraperBaseURL, "https://abit.itmo.ru/program/master/"),

		R2Enabled:         getBoolEnv(EnvR2Enabled, false),
		R2AccountID:       getEnv(EnvR2AccountID, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),
		R2SnapshotKey:     getEnv(EnvR2SnapshotKey, "snapshots/programs.tar.zst"),
		R2LockKey:         getEnv(EnvR2LockKey, "locks/ingest.json"),
		R2PollInterval:    getDurationEnv(EnvR2PollInterval, SnapshotPoll),

		SentryDSN:              getEnv(EnvSentryDSN, ""),
		SentryEnvironment:      getEnv(EnvSentryEnvironment, "production"),
		SentryRelease:          getEnv(EnvSentryRelease, ""),
		SentrySampleRate:       getFloatEnv(EnvSentrySampleRate, 1.0),
		SentryTracesSampleRate: getFloatEnv(EnvSentryTracesSampleRate, 0.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		AdminToken: getEnv(EnvAdminToken, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode reports every problem at once.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if mode == ServerMode {
		if c.Port == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvPort))
		}
		if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
			errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
		if c.ShutdownTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
		}
		if c.UserLLMPerMinute <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserLLMPerMinute, c.UserLLMPerMinute))
		}
		if c.UserLLMBurst < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvUserLLMBurst, c.UserLLMBurst))
		}
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if len(c.Programs) == 0 {
		errs = append(errs, fmt.Errorf("%s must list at least one program", EnvPrograms))
	}
	if !slices.Contains(validBackends, c.IndexBackend) {
		errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", EnvIndexBackend, validBackends, c.IndexBackend))
	}
	if c.SearchMinScore < 0 || c.SearchMinScore > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSearchMinScore, c.SearchMinScore))
	}
	if c.SearchTopK < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvSearchTopK, c.SearchTopK))
	}
	if c.SubjectThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvSubjectThreshold, c.SubjectThreshold))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvHistoryLimit, c.HistoryLimit))
	}
	if c.HistoryRetention < c.HistoryLimit {
		errs = append(errs, fmt.Errorf("%s (%d) must be >= %s (%d)", EnvHistoryRetention, c.HistoryRetention, EnvHistoryLimit, c.HistoryLimit))
	}
	for _, p := range c.LLMProviders {
		if p != ProviderOpenAI && p != ProviderGemini {
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", EnvLLMProviders, p))
		}
	}
	if c.LLMMaxTokens < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvLLMMaxTokens, c.LLMMaxTokens))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 2], got %v", EnvLLMTemperature, c.LLMTemperature))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvScraperTimeout, c.ScraperTimeout))
	}
	if c.ScraperMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvScraperMaxRetries, c.ScraperMaxRetries))
	}
	if c.R2Enabled {
		for _, kv := range [][2]string{
			{EnvR2AccountID, c.R2AccountID},
			{EnvR2AccessKeyID, c.R2AccessKeyID},
			{EnvR2SecretAccessKey, c.R2SecretAccessKey},
			{EnvR2BucketName, c.R2BucketName},
		} {
			if kv[1] == "" {
				errs = append(errs, fmt.Errorf("%s is required when %s=true", kv[0], EnvR2Enabled))
			}
		}
		if c.R2PollInterval < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvR2PollInterval, c.R2PollInterval))
		}
	}

	return errors.Join(errs...)
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv accepts anything strconv.ParseBool does.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, trimming and lowercasing items
// and dropping empty ones.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// ProgramsDir is where scraped program JSON files are stored.
func (c *Config) ProgramsDir() string {
	return filepath.Join(c.DataDir, "programs")
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "advisor.db")
}

// WebhookEnabled reports whether LINE credentials are configured.
func (c *Config) WebhookEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// HasLLMProvider returns true if at least one listed provider has a key.
func (c *Config) HasLLMProvider() bool {
	for _, p := range c.LLMProviders {
		switch p {
		case ProviderOpenAI:
			if c.OpenAIAPIKey != "" {
				return true
			}
		case ProviderGemini:
			if c.GeminiAPIKey != "" {
				return true
			}
		}
	}
	return false
}
