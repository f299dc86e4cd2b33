// Package channel defines the bridge between chat platforms and the
// router. It provides the Channel interface, streaming and typing
// extensions, message chunking, and allowlist filtering.
package channel

import (
	"context"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/pkg/message"
)

// Channel is the bridge between a chat platform and the router.
// Every concrete channel (Telegram today, others later) implements it.
//
// A channel receives messages from its platform, applies its allowlist,
// and pushes them to the router via the inbox callback. Outbound
// messages arrive through Send.
//
// Channels may additionally implement StreamingChannel or
// TypingChannel for richer delivery.
type Channel interface {
	core.Module

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SetInbox gives the channel a function that pushes inbound messages
	// to the router. Wiring calls this before Start.
	SetInbox(fn func(msg message.InboundMessage) error)
}
