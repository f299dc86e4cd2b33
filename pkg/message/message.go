// Package message defines the platform-agnostic message contract between
// chat channels and the reply pipeline. It covers text, media attachments,
// threads, reactions, and mention metadata.
package message

// ChatKind classifies the conversation a message belongs to.
type ChatKind string

const (
	// KindDM is a one-to-one conversation.
	KindDM ChatKind = "dm"
	// KindGroup is a multi-participant conversation.
	KindGroup ChatKind = "group"
	// KindBroadcast is a one-to-many announcement channel.
	KindBroadcast ChatKind = "broadcast"
)

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    string   `json:"id"`
	Kind  ChatKind `json:"kind"`
	Title string   `json:"title,omitempty"`
}

// IsDM reports whether the chat is a one-to-one conversation.
func (c Chat) IsDM() bool { return c.Kind == KindDM }

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool { return c.Kind == KindGroup }

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Mentions holds mention metadata extracted from an inbound message.
// The zero value means nobody was mentioned.
type Mentions struct {
	// Bot is true when the bot itself was mentioned.
	Bot bool `json:"bot,omitempty"`
	// UserIDs lists the identifiers of mentioned users.
	UserIDs []string `json:"user_ids,omitempty"`
}

// Empty reports whether the mention set carries no data.
func (m Mentions) Empty() bool {
	return !m.Bot && len(m.UserIDs) == 0
}
