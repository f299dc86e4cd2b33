package router

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/heraldbot/herald/internal/metrics"
)

// InMemorySessionStore is a concurrency-safe, in-memory SessionStore:
// a map behind a read-write mutex. The now function is injectable for
// deterministic tests.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session

	// maxSessions caps concurrent sessions. Zero means unlimited.
	maxSessions int

	now func() time.Time
}

// NewInMemorySessionStore creates a ready-to-use in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[SessionKey]*Session),
		now:      time.Now,
	}
}

// SetMaxSessions configures the maximum number of concurrent sessions.
// Zero means unlimited.
func (s *InMemorySessionStore) SetMaxSessions(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = limit
}

// GetOrCreate returns the existing session for the key, or creates one.
// The bool is true when a new session was created. With maxSessions
// reached, no session is created and (nil, false) is returned.
func (s *InMemorySessionStore) GetOrCreate(key SessionKey) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, false
	}

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, false
	}

	now := s.now()
	sess := &Session{
		ID:           newSessionID(),
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[key] = sess
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	return sess, true
}

// Get returns the session for the key, or nil if none exists.
func (s *InMemorySessionStore) Get(key SessionKey) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

// Touch updates the session's LastActiveAt timestamp. Unknown keys are
// a no-op.
func (s *InMemorySessionStore) Touch(key SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		sess.LastActiveAt = s.now()
	}
}

// Delete removes the session for the key. Unknown keys are a no-op.
func (s *InMemorySessionStore) Delete(key SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	metrics.SessionsActive.Set(float64(len(s.sessions)))
}

// Prune removes sessions whose idle time exceeds maxIdle and returns
// how many were removed.
func (s *InMemorySessionStore) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.LastActiveAt) > maxIdle {
			delete(s.sessions, key)
			pruned++
		}
	}
	if pruned > 0 {
		metrics.SessionsActive.Set(float64(len(s.sessions)))
	}
	return pruned
}

// Len returns the number of active sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Range calls fn for each session until fn returns false. The lock is
// held for the whole iteration, so keep fn fast.
func (s *InMemorySessionStore) Range(fn func(SessionKey, *Session) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, sess := range s.sessions {
		if !fn(key, sess) {
			return
		}
	}
}

// ActiveKeys returns a snapshot of currently active session keys.
func (s *InMemorySessionStore) ActiveKeys() map[SessionKey]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[SessionKey]struct{}, len(s.sessions))
	for key := range s.sessions {
		keys[key] = struct{}{}
	}
	return keys
}

// newSessionID produces a 32-character hex string from 16 random bytes.
func newSessionID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken;
		// fall back to a timestamp so the session still works.
		return fmt.Sprintf("t-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
