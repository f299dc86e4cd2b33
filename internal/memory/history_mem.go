package memory

import (
	"context"
	"sync"

	"github.com/heraldbot/herald/internal/provider"
)

// sessionData holds the history and summary for a single session.
type sessionData struct {
	messages []provider.LLMMessage
	summary  string
}

// InMemoryStore is a thread-safe, in-memory implementation of
// HistoryStore and KVStore. History vanishes on restart; configurations
// that want persistence load a memory module instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData
	kv       map[string]string
}

// NewInMemoryStore creates a new empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*sessionData),
		kv:       make(map[string]string),
	}
}

// Compile-time interface checks.
var (
	_ HistoryStore = (*InMemoryStore)(nil)
	_ KVStore      = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) getOrCreate(sessionID string) *sessionData {
	sd, ok := s.sessions[sessionID]
	if !ok {
		sd = &sessionData{}
		s.sessions[sessionID] = sd
	}
	return sd
}

// Append adds a message to the session's history.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msg provider.LLMMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd := s.getOrCreate(sessionID)
	sd.messages = append(sd.messages, msg)
	return nil
}

// Recent returns the n most recent messages for a session.
func (s *InMemoryStore) Recent(_ context.Context, sessionID string, n int) ([]provider.LLMMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sd, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	msgs := sd.messages
	if n <= 0 || n >= len(msgs) {
		result := make([]provider.LLMMessage, len(msgs))
		copy(result, msgs)
		return result, nil
	}

	result := make([]provider.LLMMessage, n)
	copy(result, msgs[len(msgs)-n:])
	return result, nil
}

// SetSummary stores a compaction summary for a session.
func (s *InMemoryStore) SetSummary(_ context.Context, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(sessionID).summary = summary
	return nil
}

// Summary returns the stored summary for a session.
func (s *InMemoryStore) Summary(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sd, ok := s.sessions[sessionID]
	if !ok {
		return "", nil
	}
	return sd.summary, nil
}

// Purge removes all history and summary for a session.
func (s *InMemoryStore) Purge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len returns the number of messages stored for a session.
func (s *InMemoryStore) Len(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sd, ok := s.sessions[sessionID]
	if !ok {
		return 0, nil
	}
	return len(sd.messages), nil
}

// Put stores value under key.
func (s *InMemoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

// Get returns the value for key.
func (s *InMemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

// Delete removes key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}
