package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	lru "github.com/hashicorp/golang-lru"
)

// dedupCapacity bounds how many inbound message ids the in-memory backend remembers.
const dedupCapacity = 50000

var _ Backend = (*InMemoryStore)(nil)

// InMemoryStore keeps results and seen message ids in bounded LRU caches.
type InMemoryStore struct {
	results *lru.Cache
	seen    *lru.Cache
	ttl     time.Duration
}

// NewInMemoryStore creates an in-memory backend honouring capacity and TTL options.
func NewInMemoryStore(opts ...Option) (*InMemoryStore, error) {
	cfg := applyOpts(opts)
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultResultCapacity
	}
	results, err := lru.New(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	seen, err := lru.New(dedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &InMemoryStore{results: results, seen: seen, ttl: cfg.TTL}, nil
}

func (s *InMemoryStore) SaveResult(ctx context.Context, userID string, r models.Result) error {
	evicted := s.results.Add(userID, r)
	slog.Debug("InMemoryStore SaveResult succeeded", "user_id", userID, "label", r.Label, "evicted", evicted)
	return nil
}

func (s *InMemoryStore) GetResult(ctx context.Context, userID string) (*models.Result, error) {
	v, ok := s.results.Get(userID)
	if !ok {
		return nil, nil
	}
	r := v.(models.Result)
	if expired(r.CreatedAt, s.ttl) {
		s.results.Remove(userID)
		slog.Debug("InMemoryStore GetResult expired", "user_id", userID)
		return nil, nil
	}
	return &r, nil
}

// ResultCount returns the number of cached results.
func (s *InMemoryStore) ResultCount() int {
	return s.results.Len()
}

func (s *InMemoryStore) RecordInbound(messageID, userID string) (bool, error) {
	if found, _ := s.seen.ContainsOrAdd(messageID, userID); found {
		return false, nil
	}
	return true, nil
}

// Prune drops expired results. The dedup cache is bounded by size instead.
func (s *InMemoryStore) Prune(ctx context.Context) (int64, error) {
	var removed int64
	for _, key := range s.results.Keys() {
		v, ok := s.results.Peek(key)
		if !ok {
			continue
		}
		if expired(v.(models.Result).CreatedAt, s.ttl) {
			s.results.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Close drops all cached data.
func (s *InMemoryStore) Close() error {
	s.results.Purge()
	s.seen.Purge()
	return nil
}
