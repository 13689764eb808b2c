// Package store provides storage backends for SleepAdvisor.
//
// This file implements a PostgreSQL-backed result cache and dedup log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

var _ Backend = (*PostgresStore)(nil)

type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, ttl: cfg.TTL}, nil
}

// SaveResult upserts the result of a user.
func (s *PostgresStore) SaveResult(ctx context.Context, userID string, r models.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (user_id, label, label_name, advice, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			label = EXCLUDED.label,
			label_name = EXCLUDED.label_name,
			advice = EXCLUDED.advice,
			created_at = EXCLUDED.created_at`,
		userID, r.Label, r.LabelName, r.Advice, r.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveResult failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to save result for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SaveResult succeeded", "user_id", userID, "label", r.Label)
	return nil
}

// GetResult returns the cached result of a user, or nil when absent or expired.
func (s *PostgresStore) GetResult(ctx context.Context, userID string) (*models.Result, error) {
	var r models.Result
	err := s.db.QueryRowContext(ctx,
		`SELECT label, label_name, advice, created_at FROM results WHERE user_id = $1`, userID).
		Scan(&r.Label, &r.LabelName, &r.Advice, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetResult failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to load result for %s: %w", userID, err)
	}
	if expired(r.CreatedAt, s.ttl) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE user_id = $1`, userID); err != nil {
			slog.Warn("PostgresStore GetResult failed to delete expired row", "error", err, "user_id", userID)
		}
		return nil, nil
	}
	return &r, nil
}

// RecordInbound records a provider message id; false means it was seen before.
func (s *PostgresStore) RecordInbound(messageID, userID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO inbound_dedup (message_id, user_id) VALUES ($1, $2) ON CONFLICT (message_id) DO NOTHING`,
		messageID, userID)
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
func (s *PostgresStore) Prune(ctx context.Context) (int64, error) {
	return pruneSQL(ctx, s.db, "$1", s.ttl)
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
