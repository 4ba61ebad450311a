package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Defaults for history retention.
const (
	DefaultHistoryLimit = 10
	DefaultRetention    = 50
)

const memoryPath = ":memory:"

// DB wraps the SQLite history database. Writes go through a single
// connection; reads use a small pool.
type DB struct {
	writer    *sql.DB
	reader    *sql.DB
	path      string
	retention int
}

// New opens the database at dbPath and initializes the schema. retention is
// the number of turns kept per user; values <= 0 use DefaultRetention.
func New(ctx context.Context, dbPath string, retention int) (*DB, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := openConnection(ctx, dbPath, 1)
	if err != nil {
		return nil, err
	}

	// Each in-memory connection is its own database, so tests share the writer.
	reader := writer
	if dbPath != memoryPath {
		reader, err = openConnection(ctx, dbPath, 4)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	db := &DB{writer: writer, reader: reader, path: dbPath, retention: retention}

	if err := InitSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func openConnection(ctx context.Context, dbPath string, maxOpen int) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxOpen)
	if dbPath != memoryPath {
		conn.SetConnMaxLifetime(time.Hour)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	if dbPath != memoryPath {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// Close closes both connection pools.
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if cerr := db.writer.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Retention returns the per-user turn cap.
func (db *DB) Retention() int {
	return db.retention
}

// withTx runs fn in a write transaction.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewTestDB creates an in-memory database for testing.
func NewTestDB() (*DB, error) {
	return New(context.Background(), memoryPath, DefaultRetention)
}
