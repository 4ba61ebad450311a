package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/garyellow/itmo-advisor-go/internal/stringutil"
)

// Action defines what the caller does after a failed call.
type Action int

const (
	// ActionRetry retries the same provider after a backoff.
	ActionRetry Action = iota
	// ActionFallback moves on to the next provider.
	ActionFallback
	// ActionFail gives up immediately.
	ActionFail
)

// String returns a human-readable string for the action.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError wraps an error with additional context for retry/fallback decisions.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	msg := string(e.Provider) + ": " + e.Err.Error()
	if e.StatusCode > 0 {
		msg += " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// ClassifyError determines the appropriate action based on the error:
//   - transient errors (429, 5xx, network, timeouts) are retried
//   - quota exhaustion and auth errors (401, 403) move to the next provider
//   - other 4xx errors and cancellation fail immediately
func ClassifyError(err error) Action {
	if err == nil {
		return ActionFail
	}

	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}

	errStr := strings.ToLower(err.Error())

	// Quota exhaustion is reported with 429 by most providers but retrying
	// the same key will not help.
	if stringutil.ContainsAny(errStr, "quota", "daily limit", "monthly limit", "billing", "insufficient_quota") {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}

	if stringutil.ContainsAny(errStr, "rate limit", "too many requests", "resource_exhausted", "429") {
		return ActionRetry
	}
	if stringutil.ContainsAny(errStr, "unavailable", "500", "502", "503", "504",
		"internal server error", "bad gateway", "gateway timeout", "overloaded", "capacity") {
		return ActionRetry
	}
	if stringutil.ContainsAny(errStr, "408", "409", "timeout", "deadline", "connection reset", "connection refused", "eof") {
		return ActionRetry
	}
	if stringutil.ContainsAny(errStr, "401", "unauthorized", "unauthenticated", "invalid api key",
		"403", "forbidden", "permission denied", "permission_denied") {
		// A bad key on one provider says nothing about the next one.
		return ActionFallback
	}
	if stringutil.ContainsAny(errStr, "400", "invalid", "bad request", "malformed", "404", "not found", "422", "unprocessable") {
		return ActionFail
	}

	return ActionRetry
}

// classifyStatusCode determines action based on HTTP status code.
func classifyStatusCode(statusCode int) Action {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusConflict,
		statusCode >= 500 && statusCode < 600:
		return ActionRetry
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return ActionFallback
	case statusCode >= 400 && statusCode < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// ParseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
// Returns 0 if header is missing or invalid.
func ParseRetryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	if msStr := headers.Get("retry-after-ms"); msStr != "" {
		if ms, err := strconv.Atoi(msStr); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	if secStr := headers.Get("retry-after"); secStr != "" {
		if sec, err := strconv.Atoi(secStr); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
		if t, err := http.ParseTime(secStr); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return 0
}

// WrapError attaches the provider and, for OpenAI SDK errors, the HTTP
// status and Retry-After hint.
func WrapError(err error, provider Provider) error {
	if err == nil {
		return nil
	}
	wrapped := &LLMError{Err: err, Provider: provider}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped.StatusCode = apiErr.StatusCode
		if apiErr.Response != nil {
			wrapped.RetryAfter = ParseRetryAfter(apiErr.Response.Header)
		}
	}
	return wrapped
}

// retryAfter returns the server-provided delay hint of err, or 0.
func retryAfter(err error) time.Duration {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return 0
}
