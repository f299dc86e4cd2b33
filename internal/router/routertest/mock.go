// Package routertest provides mock implementations of router
// interfaces for tests.
package routertest

import (
	"context"
	"sync"
	"time"

	"github.com/heraldbot/herald/internal/agent"
	"github.com/heraldbot/herald/internal/router"
	"github.com/heraldbot/herald/pkg/message"
)

// MockResponseSender records sent messages for assertions.
type MockResponseSender struct {
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	mu   sync.Mutex
	sent []message.OutboundMessage
}

// Send records the outbound message and optionally delegates to SendFunc.
func (m *MockResponseSender) Send(ctx context.Context, msg message.OutboundMessage) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

// SentMessages returns a copy of all recorded outbound messages.
func (m *MockResponseSender) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]message.OutboundMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// SendCallCount returns the number of Send calls so far.
func (m *MockResponseSender) SendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// MockAgentFactory returns agent loops for test sessions.
type MockAgentFactory struct {
	ForSessionFunc func(session *router.Session, msg message.InboundMessage) (*agent.Loop, error)
}

// ForSession delegates to ForSessionFunc, or returns nil when unset.
func (m *MockAgentFactory) ForSession(session *router.Session, msg message.InboundMessage) (*agent.Loop, error) {
	if m.ForSessionFunc != nil {
		return m.ForSessionFunc(session, msg)
	}
	return nil, nil
}

// MockSessionStore provides controllable session store behavior.
// Unset funcs fall back to harmless defaults.
type MockSessionStore struct {
	GetOrCreateFunc func(key router.SessionKey) (*router.Session, bool)
	GetFunc         func(key router.SessionKey) *router.Session
	TouchFunc       func(key router.SessionKey)
	DeleteFunc      func(key router.SessionKey)
	PruneFunc       func(maxIdle time.Duration) int
	LenFunc         func() int
	RangeFunc       func(fn func(router.SessionKey, *router.Session) bool)
}

// GetOrCreate delegates to GetOrCreateFunc, or returns a fresh session.
func (m *MockSessionStore) GetOrCreate(key router.SessionKey) (*router.Session, bool) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(key)
	}
	now := time.Now()
	return &router.Session{
		ID:           "mock-session",
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
	}, true
}

// Get delegates to GetFunc, or returns nil.
func (m *MockSessionStore) Get(key router.SessionKey) *router.Session {
	if m.GetFunc != nil {
		return m.GetFunc(key)
	}
	return nil
}

// Touch delegates to TouchFunc when set.
func (m *MockSessionStore) Touch(key router.SessionKey) {
	if m.TouchFunc != nil {
		m.TouchFunc(key)
	}
}

// Delete delegates to DeleteFunc when set.
func (m *MockSessionStore) Delete(key router.SessionKey) {
	if m.DeleteFunc != nil {
		m.DeleteFunc(key)
	}
}

// Prune delegates to PruneFunc, or reports zero.
func (m *MockSessionStore) Prune(maxIdle time.Duration) int {
	if m.PruneFunc != nil {
		return m.PruneFunc(maxIdle)
	}
	return 0
}

// Len delegates to LenFunc, or reports zero.
func (m *MockSessionStore) Len() int {
	if m.LenFunc != nil {
		return m.LenFunc()
	}
	return 0
}

// Range delegates to RangeFunc when set.
func (m *MockSessionStore) Range(fn func(router.SessionKey, *router.Session) bool) {
	if m.RangeFunc != nil {
		m.RangeFunc(fn)
	}
}

var _ router.SessionStore = (*MockSessionStore)(nil)
var _ router.ResponseSender = (*MockResponseSender)(nil)
var _ router.AgentFactory = (*MockAgentFactory)(nil)
