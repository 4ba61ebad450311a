// Package errors provides domain-specific error types and sentinel errors
// shared by the advisor packages.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check them with errors.Is.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexNotReady indicates no retrieval index generation has been built.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrNoBackground indicates a recommendation was requested before the user
	// described their background.
	ErrNoBackground = errors.New("user background not set")

	// ErrRateLimited indicates the per-user limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrLLMUnavailable indicates no generation provider is configured or reachable.
	ErrLLMUnavailable = errors.New("llm unavailable")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ScraperError represents a failed fetch of a program page or document.
type ScraperError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ScraperError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scraper error (url=%s, status=%d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("scraper error (url=%s): %v", e.URL, e.Err)
}

func (e *ScraperError) Unwrap() error {
	return e.Err
}

// NewScraperError creates a new scraper error.
func NewScraperError(url string, statusCode int, err error) *ScraperError {
	return &ScraperError{URL: url, StatusCode: statusCode, Err: err}
}
