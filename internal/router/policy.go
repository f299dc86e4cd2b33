package router

import (
	"slices"

	"github.com/heraldbot/herald/pkg/message"
)

// GroupPolicyMode defines how the router handles group messages.
type GroupPolicyMode string

const (
	// GroupPolicyRequireMention processes group messages only when the
	// bot is mentioned.
	GroupPolicyRequireMention GroupPolicyMode = "require_mention"
	// GroupPolicyAllowAll processes every group message.
	GroupPolicyAllowAll GroupPolicyMode = "allow_all"
)

// GroupPolicy controls which messages get processed in group chats.
// DMs always pass.
type GroupPolicy struct {
	Mode      GroupPolicyMode
	Allowlist []string
	Denylist  []string
}

// ShouldProcess reports whether an inbound message should be handled.
//
// DMs always pass. In groups, denylisted senders are dropped first;
// then allow_all passes everything, and require_mention passes
// allowlisted senders or messages that mention the bot. An unknown
// mode drops group messages.
func (p GroupPolicy) ShouldProcess(msg message.InboundMessage) bool {
	if msg.IsDM() {
		return true
	}

	if slices.Contains(p.Denylist, msg.Sender.ID) {
		return false
	}

	switch p.Mode {
	case GroupPolicyAllowAll:
		return true
	case GroupPolicyRequireMention:
		if slices.Contains(p.Allowlist, msg.Sender.ID) {
			return true
		}
		return msg.Mentions.Bot
	default:
		return false
	}
}
