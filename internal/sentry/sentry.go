// Package sentry wraps the Sentry SDK: initialization from configuration and
// context-aware capture that tags events with the request id, user and
// channel of the conversation that failed.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
)

// Config holds Sentry configuration.
type Config struct {
	// DSN enables reporting. Empty disables Sentry.
	DSN string

	// Environment identifies the deployment (e.g. "production", "staging").
	Environment string

	// Release identifies the application release version.
	Release string

	// ServerName overrides the reported host name.
	ServerName string

	// SampleRate controls error sampling (0.0-1.0, default 1.0).
	SampleRate float64

	// TracesSampleRate controls performance tracing (0 disables it).
	TracesSampleRate float64

	// Debug enables Sentry SDK debug logging.
	Debug bool
}

// Initialize sets up the Sentry SDK. An empty DSN leaves Sentry disabled and
// returns nil.
func Initialize(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       sampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

// Flush waits for buffered events to be sent to the server.
// Returns true if all events were sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException captures an error and sends it to Sentry.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// CaptureExceptionWithContext captures err on the request hub (set by the
// gin middleware) and tags it with the conversation identifiers in ctx.
func CaptureExceptionWithContext(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range Tags(ctx) {
			scope.SetTag(k, v)
		}
		if userID := ctxutil.GetUserID(ctx); userID != "" {
			scope.SetUser(sentry.User{ID: userID})
		}
		hub.CaptureException(err)
	})
}

// Tags returns the event tags derived from ctx.
func Tags(ctx context.Context) map[string]string {
	tags := make(map[string]string, 2)
	if id, ok := ctxutil.GetRequestID(ctx); ok {
		tags["request_id"] = id
	}
	if ch := ctxutil.GetChannel(ctx); ch != "" {
		tags["channel"] = ch
	}
	return tags
}

// CaptureMessage captures a message and sends it to Sentry.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}
