// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// LINE (optional, webhook is disabled when empty)
	EnvLineChannelAccessToken = "ITMO_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "ITMO_LINE_CHANNEL_SECRET"

	// Server
	EnvPort            = "ITMO_PORT"
	EnvLogLevel        = "ITMO_LOG_LEVEL"
	EnvShutdownTimeout = "ITMO_SHUTDOWN_TIMEOUT"
	EnvServerName      = "ITMO_SERVER_NAME"

	// Data
	EnvDataDir  = "ITMO_DATA_DIR"
	EnvPrograms = "ITMO_PROGRAMS"

	// Retrieval
	EnvIndexBackend   = "ITMO_INDEX_BACKEND"
	EnvSearchMinScore = "ITMO_SEARCH_MIN_SCORE"
	EnvSearchTopK     = "ITMO_SEARCH_TOP_K"

	// Recommendation
	EnvSubjectThreshold = "ITMO_SUBJECT_THRESHOLD"
	EnvTablesFile       = "ITMO_TABLES_FILE"

	// History
	EnvHistoryLimit     = "ITMO_HISTORY_LIMIT"
	EnvHistoryRetention = "ITMO_HISTORY_RETENTION"

	// LLM
	EnvLLMProviders   = "ITMO_LLM_PROVIDERS"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
	EnvOpenAIBaseURL  = "OPENAI_BASE_URL"
	EnvLLMModel       = "LLM_MODEL"
	EnvGeminiAPIKey   = "ITMO_GEMINI_API_KEY"
	EnvGeminiModel    = "ITMO_GEMINI_MODEL"
	EnvLLMMaxTokens   = "ITMO_LLM_MAX_TOKENS"
	EnvLLMTemperature = "ITMO_LLM_TEMPERATURE"
	EnvLLMTimeout     = "ITMO_LLM_TIMEOUT"

	// Rate Limits
	EnvUserLLMPerMinute = "ITMO_USER_LLM_PER_MINUTE"
	EnvUserLLMBurst     = "ITMO_USER_LLM_BURST"

	// Scraper
	EnvScraperTimeout    = "ITMO_SCRAPER_TIMEOUT"
	EnvScraperMaxRetries = "ITMO_SCRAPER_MAX_RETRIES"
	EnvScraperBaseURL    = "ITMO_SCRAPER_BASE_URL"

	// R2 Snapshot Feature
	EnvR2Enabled         = "ITMO_R2_ENABLED"
	EnvR2AccountID       = "ITMO_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "ITMO_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "ITMO_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "ITMO_R2_BUCKET_NAME"
	EnvR2SnapshotKey     = "ITMO_R2_SNAPSHOT_KEY"
	EnvR2LockKey         = "ITMO_R2_LOCK_KEY"
	EnvR2PollInterval    = "ITMO_R2_POLL_INTERVAL"

	// Sentry Feature
	EnvSentryDSN              = "ITMO_SENTRY_DSN"
	EnvSentryEnvironment      = "ITMO_SENTRY_ENVIRONMENT"
	EnvSentryRelease          = "ITMO_SENTRY_RELEASE"
	EnvSentrySampleRate       = "ITMO_SENTRY_SAMPLE_RATE"
	EnvSentryTracesSampleRate = "ITMO_SENTRY_TRACES_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "ITMO_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "ITMO_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "ITMO_METRICS_USERNAME"
	EnvMetricsPassword = "ITMO_METRICS_PASSWORD"

	// Admin API
	EnvAdminToken = "ITMO_ADMIN_TOKEN"
)
