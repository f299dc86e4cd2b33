// Package memory defines the conversation history and key-value storage
// interfaces. The in-memory implementations here back tests and the
// default zero-config setup; durable backends live under modules/memory.
package memory

import (
	"context"
	"time"

	"github.com/heraldbot/herald/internal/provider"
)

// Exchange pairs one user message with the assistant reply it produced.
type Exchange struct {
	UserMessage      provider.LLMMessage
	AssistantMessage provider.LLMMessage
	Timestamp        time.Time
}

// HistoryStore manages per-session conversation history.
// Implementations must be safe for concurrent use. Backends doing I/O
// honor the context; the in-memory store ignores it.
type HistoryStore interface {
	// Append adds a message to the session's history.
	Append(ctx context.Context, sessionID string, msg provider.LLMMessage) error

	// Recent returns the n most recent messages for a session in
	// chronological order. n <= 0 returns all messages.
	Recent(ctx context.Context, sessionID string, n int) ([]provider.LLMMessage, error)

	// SetSummary stores a compaction summary for a session, replacing
	// any previous one.
	SetSummary(ctx context.Context, sessionID, summary string) error

	// Summary returns the stored summary for a session, or "" when none
	// exists.
	Summary(ctx context.Context, sessionID string) (string, error)

	// Purge removes all history and summary for a session.
	Purge(ctx context.Context, sessionID string) error

	// Len returns the number of messages stored for a session.
	Len(ctx context.Context, sessionID string) (int, error)
}

// KVStore is a small durable key-value surface. The Telegram poller
// persists its update offset through it so a restart does not replay
// already-handled updates.
type KVStore interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
