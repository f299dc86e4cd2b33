package channel

import (
	"strings"

	"github.com/heraldbot/herald/pkg/message"
)

// AllowList controls which users and chats may interact with a channel.
// An empty or nil AllowList denies everyone.
type AllowList struct {
	users map[string]struct{}
	chats map[string]struct{}
}

// NewAllowList builds an AllowList with O(1) lookups. Entries are
// trimmed and lowercased at construction so IsAllowed can use direct
// map hits.
func NewAllowList(users, chats []string) *AllowList {
	a := &AllowList{
		users: make(map[string]struct{}, len(users)),
		chats: make(map[string]struct{}, len(chats)),
	}
	for _, u := range users {
		if u = normalize(u); u != "" {
			a.users[u] = struct{}{}
		}
	}
	for _, c := range chats {
		if c = normalize(c); c != "" {
			a.chats[c] = struct{}{}
		}
	}
	return a
}

// IsAllowed reports whether the message may pass.
//
// Rules:
//   - Both sets empty: deny everyone.
//   - Sender ID or username matches a user entry: allow.
//   - Chat ID matches a chat entry: allow.
//   - Otherwise: deny.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if a == nil || (len(a.users) == 0 && len(a.chats) == 0) {
		return false
	}

	if _, ok := a.users[normalize(msg.Sender.ID)]; ok {
		return true
	}
	if msg.Sender.Username != "" {
		if _, ok := a.users[normalize(msg.Sender.Username)]; ok {
			return true
		}
	}
	if _, ok := a.chats[normalize(msg.Chat.ID)]; ok {
		return true
	}
	return false
}

// normalize lowercases, trims, and drops a leading @ so Telegram
// usernames written either way compare equal.
func normalize(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
}
