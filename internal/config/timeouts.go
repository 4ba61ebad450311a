// Package config provides centralized timeout constants for the application.
//
// These values are tuned for:
//   - LINE Messaging API constraints (reply token expiration, webhook timeouts)
//   - abit.itmo.ru response times and curriculum PDF downloads
//   - LLM completion latency
//
// # LINE API Constraints
//
// LINE expects a quick 200 OK. Events are processed after the
// acknowledgment, so WebhookProcessing bounds the detached work, not the
// HTTP response. A reply token stays valid for about a minute of UX budget.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event,
	// including retrieval, one LLM completion and the reply call.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout.
	// LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout. /api/ask waits for
	// a completion, so it must cover LLMRequest.
	WebhookHTTPWrite = 65 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Scraper timeouts
const (
	// ScraperRequest is the timeout for a single HTTP request to the admissions site.
	ScraperRequest = 30 * time.Second

	// ScraperRetryInitial is the initial delay before retrying a failed request.
	// Uses exponential backoff: 2s -> 4s -> 8s
	ScraperRetryInitial = 2 * time.Second

	// ScraperRateLimit is the minimum delay between consecutive requests to one host.
	ScraperRateLimit = 500 * time.Millisecond
)

// LLM timeouts
const (
	// LLMRequest bounds one completion including retries and provider fallback.
	LLMRequest = 45 * time.Second

	// LLMRelevanceCheck bounds the yes/no relevance probe. On timeout the
	// question is treated as relevant.
	LLMRelevanceCheck = 10 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// ReadinessCheckTimeout bounds the database ping in /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Background job intervals
const (
	// RateLimiterCleanupInterval is how often idle per-user limiters are dropped.
	RateLimiterCleanupInterval = 5 * time.Minute

	// IndexBuild bounds one index rebuild from disk.
	IndexBuild = 2 * time.Minute

	// SnapshotPoll is how often the server checks R2 for a newer corpus bundle.
	SnapshotPoll = 15 * time.Minute

	// IngestLockTTL is how long an ingestion run holds the R2 lock.
	IngestLockTTL = 30 * time.Minute

	// IngestLockRenewInterval is how often a running ingestion extends the lock.
	IngestLockRenewInterval = 10 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight requests to complete before forceful termination.
	GracefulShutdown = 30 * time.Second
)
