package router

import (
	"context"

	"github.com/heraldbot/herald/internal/agent"
	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/pkg/message"
)

// ResponseSender delivers outbound messages. Implemented by
// channel.Dispatcher.
type ResponseSender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// ChannelLookup resolves a channel by name, used for typing indicators
// and streaming. Implemented by channel.Dispatcher.
type ChannelLookup interface {
	Get(name string) (channel.Channel, bool)
}

// AgentFactory creates the agent loop that answers a session's message.
type AgentFactory interface {
	ForSession(session *Session, msg message.InboundMessage) (*agent.Loop, error)
}

// messageToLLM converts an inbound message to a user-role LLM message.
func messageToLLM(msg message.InboundMessage) provider.LLMMessage {
	return provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: msg.Text(),
		Name:    msg.Sender.Username,
	}
}

// buildOutbound creates the reply message, preserving channel, thread,
// and reply linkage.
func buildOutbound(original message.InboundMessage, resp agent.Response) message.OutboundMessage {
	return message.Reply(original, resp.Content)
}
