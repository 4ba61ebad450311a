// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	channelKey   contextKey = "ctxutil.channel"
	requestIDKey contextKey = "ctxutil.requestID"
)

// Channel names the surface a request arrived through.
const (
	ChannelLINE = "line"
	ChannelAPI  = "api"
	ChannelCLI  = "cli"
)

// WithUserID adds a user ID to the context.
// The ID keys conversation history and per-user LLM limits.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context, or "" when absent.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// MustGetUserID retrieves the user ID from the context.
// Panics if the user ID is not found.
func MustGetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		panic("ctxutil: userID not found")
	}
	return userID
}

// WithChannel records which surface (LINE, HTTP API, CLI) produced the request.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey, channel)
}

// GetChannel retrieves the channel from the context, or "" when absent.
func GetChannel(ctx context.Context) string {
	if v, ok := ctx.Value(channelKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds a request ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// PreserveTracing creates a detached context that keeps only tracing values.
// Use it for work that must outlive the request, such as LINE events that are
// processed after the webhook has already been acknowledged.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if channel := GetChannel(ctx); channel != "" {
		newCtx = WithChannel(newCtx, channel)
	}
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}

	return newCtx
}
