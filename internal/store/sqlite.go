// Package store provides storage backends for SleepAdvisor.
//
// This file implements an SQLite-backed result cache and dedup log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Backend.
var _ Backend = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer avoids SQLITE_BUSY under concurrent lanes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db, ttl: cfg.TTL}, nil
}

// SaveResult stores or replaces the result of a user.
func (s *SQLiteStore) SaveResult(ctx context.Context, userID string, r models.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (user_id, label, label_name, advice, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, r.Label, r.LabelName, r.Advice, r.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveResult failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to save result for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SaveResult succeeded", "user_id", userID, "label", r.Label)
	return nil
}

// GetResult returns the cached result of a user, or nil when absent or expired.
func (s *SQLiteStore) GetResult(ctx context.Context, userID string) (*models.Result, error) {
	var r models.Result
	err := s.db.QueryRowContext(ctx,
		`SELECT label, label_name, advice, created_at FROM results WHERE user_id = ?`, userID).
		Scan(&r.Label, &r.LabelName, &r.Advice, &r.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetResult not found", "user_id", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetResult failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to load result for %s: %w", userID, err)
	}
	if expired(r.CreatedAt, s.ttl) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE user_id = ?`, userID); err != nil {
			slog.Warn("SQLiteStore GetResult failed to delete expired row", "error", err, "user_id", userID)
		}
		return nil, nil
	}
	return &r, nil
}

// RecordInbound records a provider message id; false means it was seen before.
func (s *SQLiteStore) RecordInbound(messageID, userID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)`,
		messageID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return n == 1, nil
}

// Prune deletes expired results and dedup rows older than DedupRetention.
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	return pruneSQL(ctx, s.db, "?", s.ttl)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
