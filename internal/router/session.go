package router

import (
	"strings"
	"time"

	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/pkg/message"
)

// SessionKey is the composite key for O(1) session lookups. Messages
// in the same channel, chat, and thread share a session.
type SessionKey struct {
	Channel  string
	ChatID   string
	ThreadID string
}

// SessionKeyFromMessage derives a SessionKey from an inbound message.
func SessionKeyFromMessage(msg message.InboundMessage) SessionKey {
	return SessionKey{
		Channel:  msg.Channel,
		ChatID:   msg.Chat.ID,
		ThreadID: msg.ThreadID,
	}
}

// String renders the key in the form used by persistent history
// backends: channel/chatID or channel/chatID/threadID.
func (k SessionKey) String() string {
	parts := []string{k.Channel, k.ChatID}
	if k.ThreadID != "" {
		parts = append(parts, k.ThreadID)
	}
	return strings.Join(parts, "/")
}

// IsZero reports whether the key is empty.
func (k SessionKey) IsZero() bool {
	return k.Channel == "" && k.ChatID == "" && k.ThreadID == ""
}

// ParseSessionKey is the inverse of SessionKey.String: it parses
// "channel/chatID" or "channel/chatID/threadID" back into a key. The
// heartbeat hands session IDs back in this form when poking idle
// conversations. It returns false when the string does not have two or
// three non-empty segments.
func ParseSessionKey(s string) (SessionKey, bool) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return SessionKey{}, false
	}
	for _, p := range parts {
		if p == "" {
			return SessionKey{}, false
		}
	}
	key := SessionKey{Channel: parts[0], ChatID: parts[1]}
	if len(parts) == 3 {
		key.ThreadID = parts[2]
	}
	return key, true
}

// Session is one active conversation. It holds the in-memory history
// window the agent loop sees plus timing metadata for pruning and the
// heartbeat's idle check.
type Session struct {
	ID           string
	Key          SessionKey
	CreatedAt    time.Time
	LastActiveAt time.Time
	History      []provider.LLMMessage

	// Summary is the rolling compaction summary injected into the
	// system prompt. Touched only under the session lane, like History.
	Summary string

	Metadata map[string]any
}

// SessionStore manages session lifecycle.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// GetOrCreate returns an existing session or creates a new one.
	// The bool reports whether the session was newly created.
	GetOrCreate(key SessionKey) (*Session, bool)

	// Get returns the session for the key, or nil if none exists.
	Get(key SessionKey) *Session

	// Touch updates the session's LastActiveAt timestamp.
	Touch(key SessionKey)

	// Delete removes the session for the key.
	Delete(key SessionKey)

	// Prune removes sessions idle longer than maxIdle and returns how
	// many were removed.
	Prune(maxIdle time.Duration) int

	// Len returns the number of active sessions.
	Len() int

	// Range calls fn for each session until fn returns false.
	Range(fn func(SessionKey, *Session) bool)
}
