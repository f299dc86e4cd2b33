// Package channeltest provides channel test doubles for router and
// integration tests.
package channeltest

import (
	"context"
	"sync"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/pkg/message"
)

// MockChannel implements channel.Channel. It records sent messages and
// feeds inbound messages through the allowlist via SimulateMessage.
type MockChannel struct {
	name      string
	allowList *channel.AllowList

	mu    sync.Mutex
	inbox func(msg message.InboundMessage) error
	sent  []message.OutboundMessage

	// SendFunc, when set, replaces the default recording behavior.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error
}

var _ channel.Channel = (*MockChannel)(nil)

// NewMockChannel creates a MockChannel with the given name and an
// optional allowlist. A nil allowlist denies every sender.
func NewMockChannel(name string, allowList *channel.AllowList) *MockChannel {
	return &MockChannel{
		name:      name,
		allowList: allowList,
	}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID: core.ModuleID("channel." + m.name),
		New: func() core.Module {
			return NewMockChannel(m.name, m.allowList)
		},
	}
}

// Send records the outbound message, or delegates to SendFunc when set.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// SetInbox stores the inbox callback provided by the router.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SimulateMessage pushes an inbound message through the allowlist and
// into the inbox. It returns channel.ErrDenied for blocked senders and
// channel.ErrNoInbox when SetInbox has not been called.
func (m *MockChannel) SimulateMessage(msg message.InboundMessage) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()

	if !m.allowList.IsAllowed(msg) {
		return channel.ErrDenied
	}
	if inbox == nil {
		return channel.ErrNoInbox
	}

	msg.Channel = m.name
	return inbox(msg)
}

// SentMessages returns a copy of all messages recorded by Send.
func (m *MockChannel) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.OutboundMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// Reset clears recorded sent messages.
func (m *MockChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// MockStreamingChannel extends MockChannel with streaming and typing.
type MockStreamingChannel struct {
	*MockChannel

	mu           sync.Mutex
	streaming    bool
	typingChats  []message.Chat
	streamChunks []string

	// SupportsStreamingFunc overrides the default answer.
	SupportsStreamingFunc func() bool
}

var (
	_ channel.StreamingChannel = (*MockStreamingChannel)(nil)
	_ channel.TypingChannel    = (*MockStreamingChannel)(nil)
)

// NewMockStreamingChannel creates a MockStreamingChannel that reports
// streaming support.
func NewMockStreamingChannel(name string, allowList *channel.AllowList) *MockStreamingChannel {
	return &MockStreamingChannel{
		MockChannel: NewMockChannel(name, allowList),
		streaming:   true,
	}
}

// SupportsStreaming implements channel.StreamingChannel.
func (m *MockStreamingChannel) SupportsStreaming() bool {
	if m.SupportsStreamingFunc != nil {
		return m.SupportsStreamingFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// SendStream implements channel.StreamingChannel by collecting chunks.
func (m *MockStreamingChannel) SendStream(_ context.Context, _ message.Chat, stream <-chan string) error {
	for chunk := range stream {
		m.mu.Lock()
		m.streamChunks = append(m.streamChunks, chunk)
		m.mu.Unlock()
	}
	return nil
}

// SendTyping implements channel.TypingChannel by recording the chat.
func (m *MockStreamingChannel) SendTyping(_ context.Context, chat message.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typingChats = append(m.typingChats, chat)
	return nil
}

// StreamChunks returns a copy of all chunks received by SendStream.
func (m *MockStreamingChannel) StreamChunks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]string, len(m.streamChunks))
	copy(cp, m.streamChunks)
	return cp
}

// TypingChats returns a copy of all chats sent typing indicators.
func (m *MockStreamingChannel) TypingChats() []message.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.Chat, len(m.typingChats))
	copy(cp, m.typingChats)
	return cp
}
