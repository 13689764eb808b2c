// Package store provides storage backends for SleepAdvisor.
//
// It holds the in-process Session Store and the Result Cache, which is backed
// by memory, SQLite or PostgreSQL depending on the configured DSN.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// Result cache defaults.
const (
	// DefaultResultCapacity bounds the in-memory result cache.
	DefaultResultCapacity = 10000
	// DefaultResultTTL is how long a cached result stays visible.
	DefaultResultTTL = 30 * 24 * time.Hour
	// DedupRetention is how long the SQL backends remember inbound message ids.
	DedupRetention = 7 * 24 * time.Hour
)

// ResultStore persists the latest completed prediction of each user.
type ResultStore interface {
	SaveResult(ctx context.Context, userID string, r models.Result) error
	// GetResult returns nil, nil when no fresh result exists.
	GetResult(ctx context.Context, userID string) (*models.Result, error)
	Close() error
}

// Pruner deletes rows that are past their retention.
type Pruner interface {
	// Prune returns the number of rows removed.
	Prune(ctx context.Context) (int64, error)
}

// Backend is a result store that also deduplicates inbound messages.
type Backend interface {
	ResultStore
	DedupRepo
	Pruner
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN      string
	Driver   string // "postgres" or "sqlite3"; empty means in-memory
	Capacity int
	TTL      time.Duration
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// WithSQLiteDSN selects the SQLite backend; dsn is a file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithCapacity bounds the number of results kept in memory.
func WithCapacity(n int) Option {
	return func(o *Opts) { o.Capacity = n }
}

// WithTTL sets how long results remain visible.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Capacity: DefaultResultCapacity, TTL: DefaultResultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New builds the backend selected by the options.
func New(opts ...Option) (Backend, error) {
	cfg := applyOpts(opts)
	switch cfg.Driver {
	case "postgres":
		slog.Debug("store.New: using PostgreSQL backend")
		pg, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite3":
		slog.Debug("store.New: using SQLite backend", "path", cfg.DSN)
		lite, err := NewSQLiteStore(opts...)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		slog.Debug("store.New: using in-memory backend", "capacity", cfg.Capacity, "ttl", cfg.TTL)
		mem, err := NewInMemoryStore(opts...)
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// cutoffs returns the oldest result and dedup timestamps that survive a prune.
// A zero result cutoff means results never expire.
func cutoffs(now time.Time, ttl time.Duration) (results, dedup time.Time) {
	if ttl > 0 {
		results = now.Add(-ttl).UTC()
	}
	return results, now.Add(-DedupRetention).UTC()
}

// expired reports whether a result created at t is past ttl.
func expired(t time.Time, ttl time.Duration) bool {
	return ttl > 0 && time.Since(t) > ttl
}

// pruneSQL runs the retention deletes shared by the SQL backends; placeholder
// is the driver's first bind parameter.
func pruneSQL(ctx context.Context, db *sql.DB, placeholder string, ttl time.Duration) (int64, error) {
	resultCutoff, dedupCutoff := cutoffs(time.Now(), ttl)
	var removed int64
	if !resultCutoff.IsZero() {
		res, err := db.ExecContext(ctx, `DELETE FROM results WHERE created_at < `+placeholder, resultCutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to prune results: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	res, err := db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < `+placeholder, dedupCutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to prune inbound dedup log: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n
	slog.Debug("store pruned expired rows", "removed", removed)
	return removed, nil
}
