package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
)

const activeWindow = 7 * 24 * time.Hour

// GetUser returns the stored user, or nil when there is none.
func (db *DB) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `SELECT user_id, background, interests, created_at, updated_at FROM users WHERE user_id = ?`

	var (
		u         User
		interests string
		created   int64
		updated   int64
	)
	err := db.reader.QueryRowContext(ctx, query, userID).Scan(&u.UserID, &u.Background, &interests, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query user", "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if interests != "" {
		if err := json.Unmarshal([]byte(interests), &u.Interests); err != nil {
			slog.WarnContext(ctx, "invalid interests column, ignoring", "error", err)
			u.Interests = nil
		}
	}
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return &u, nil
}

// SaveUser inserts or updates the user's background and interests.
func (db *DB) SaveUser(ctx context.Context, userID, background string, interests []string) error {
	if userID == "" {
		return domerrors.NewValidationError("user_id", "must not be empty")
	}
	if interests == nil {
		interests = []string{}
	}
	raw, err := json.Marshal(interests)
	if err != nil {
		return fmt.Errorf("failed to encode interests: %w", err)
	}

	query := `
		INSERT INTO users (user_id, background, interests, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			background = excluded.background,
			interests = excluded.interests,
			updated_at = excluded.updated_at
	`
	now := time.Now().Unix()
	if _, err := db.writer.ExecContext(ctx, query, userID, background, string(raw), now, now); err != nil {
		slog.ErrorContext(ctx, "failed to save user", "error", err)
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AddTurn appends an answered question and trims the user's history to the
// retention cap, in one transaction.
func (db *DB) AddTurn(ctx context.Context, userID, question, answer string) error {
	if userID == "" {
		return domerrors.NewValidationError("user_id", "must not be empty")
	}
	start := time.Now()
	now := start.Unix()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (user_id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
			userID, now, now); err != nil {
			return fmt.Errorf("failed to ensure user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (user_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
			userID, question, answer, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE user_id = ? AND id NOT IN (
				SELECT id FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?
			)`, userID, userID, db.retention); err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to add turn", "error", err)
		return err
	}

	if duration := time.Since(start); duration > 100*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "AddTurn",
			"duration_ms", duration.Milliseconds())
	}
	return nil
}

// RecentTurns returns the last limit turns, oldest first.
func (db *DB) RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `
		SELECT question, answer, created_at FROM (
			SELECT id, question, answer, created_at FROM messages
			WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`
	rows, err := db.reader.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var (
			t  Turn
			ts int64
		)
		if err := rows.Scan(&t.Question, &t.Answer, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Timestamp = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return turns, nil
}

// ClearHistory deletes every turn of the user. The profile is kept.
func (db *DB) ClearHistory(ctx context.Context, userID string) error {
	if _, err := db.writer.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	slog.InfoContext(ctx, "history cleared")
	return nil
}

// Stats counts users, messages and users active in the last week.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&s.TotalUsers); err != nil {
		return Stats{}, fmt.Errorf("failed to count users: %w", err)
	}
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.TotalMessages); err != nil {
		return Stats{}, fmt.Errorf("failed to count messages: %w", err)
	}
	since := time.Now().Add(-activeWindow).Unix()
	if err := db.reader.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM messages WHERE created_at > ?`, since).Scan(&s.ActiveUsersWeek); err != nil {
		return Stats{}, fmt.Errorf("failed to count active users: %w", err)
	}
	return s, nil
}
