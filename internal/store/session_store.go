package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// sessionEntry holds the bookkeeping the store owns. lastSeen and inFlight are
// only touched under SessionStore.mu; the Session itself belongs to the
// handler that checked it out.
type sessionEntry struct {
	sess     *models.Session
	lastSeen time.Time
	inFlight int
}

// SessionStore maps user ids to in-progress questionnaire sessions.
// Sessions live only in process memory; a restart drops them.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]*sessionEntry)}
}

// Get returns the session for userID.
func (s *SessionStore) Get(userID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Put stores sess, replacing any prior session of the same user.
func (s *SessionStore) Put(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.UserID] = &sessionEntry{sess: sess, lastSeen: time.Now()}
}

// Checkout returns the session of userID, records activity and pins it
// against PurgeIdle until release is called. release is safe to call after
// the session was deleted or replaced.
func (s *SessionStore) Checkout(userID string) (sess *models.Session, release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil, func() {}, false
	}
	e.lastSeen = time.Now()
	e.inFlight++
	var once sync.Once
	return e.sess, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.inFlight--
			e.lastSeen = time.Now()
		})
	}, true
}

// Delete removes the session of userID if present.
func (s *SessionStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every session.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]*sessionEntry)
	slog.Info("SessionStore cleared", "dropped", n)
}

// PurgeIdle removes sessions without activity for longer than ttl and
// returns how many were removed. Checked-out sessions are never purged.
func (s *SessionStore) PurgeIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, e := range s.entries {
		if e.inFlight == 0 && e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			purged++
		}
	}
	if purged > 0 {
		slog.Debug("SessionStore purged idle sessions", "count", purged, "ttl", ttl)
	}
	return purged
}
