package message

import (
	"encoding/json"
	"time"
)

// InboundMessage is a message received from a channel, already converted
// into the platform-agnostic form.
type InboundMessage struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Channel   string          `json:"channel"`
	Sender    Sender          `json:"sender"`
	Chat      Chat            `json:"chat"`
	ThreadID  string          `json:"thread_id,omitempty"`
	ReplyToID string          `json:"reply_to_id,omitempty"`
	Blocks    []Block         `json:"blocks"`
	Mentions  Mentions        `json:"mentions,omitzero"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Text returns the concatenated text of all text blocks.
func (m *InboundMessage) Text() string {
	return joinText(m.Blocks)
}

// HasAttachment reports whether the message carries media blocks.
func (m *InboundMessage) HasAttachment() bool {
	return hasAttachment(m.Blocks)
}

// IsDM reports whether the message arrived in a one-to-one chat.
func (m *InboundMessage) IsDM() bool { return m.Chat.IsDM() }

// IsGroup reports whether the message arrived in a group chat.
func (m *InboundMessage) IsGroup() bool { return m.Chat.IsGroup() }
