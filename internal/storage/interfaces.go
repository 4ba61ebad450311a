// Package storage persists chat users and their conversation history in
// SQLite. The interfaces let the chat layer run against fakes in tests.
package storage

import "context"

// UserRepository defines the interface for user profile operations.
type UserRepository interface {
	// GetUser returns nil, nil when the user has never been seen.
	GetUser(ctx context.Context, userID string) (*User, error)
	SaveUser(ctx context.Context, userID, background string, interests []string) error
}

// HistoryRepository defines the interface for conversation history.
type HistoryRepository interface {
	// RecentTurns returns up to limit turns, oldest first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	AddTurn(ctx context.Context, userID, question, answer string) error
	ClearHistory(ctx context.Context, userID string) error
	Stats(ctx context.Context) (Stats, error)
}

// Repository combines user and history access.
type Repository interface {
	UserRepository
	HistoryRepository
}

var _ Repository = (*DB)(nil)
