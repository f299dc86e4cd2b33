package channel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/channel/channeltest"
	"github.com/heraldbot/herald/pkg/message"
)

func TestDispatcher_RegisterAndGet(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockChannel("telegram", al)

	if err := d.Register("telegram", ch); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := d.Get("telegram")
	if !ok {
		t.Fatal("Get returned false for registered channel")
	}
	if got != channel.Channel(ch) {
		t.Error("Get returned wrong channel instance")
	}
}

func TestDispatcher_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockChannel("telegram", al)

	if err := d.Register("telegram", ch); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := d.Register("telegram", ch)
	if !errors.Is(err, channel.ErrDuplicateChannel) {
		t.Errorf("second Register = %v, want ErrDuplicateChannel", err)
	}
}

func TestDispatcher_Unregister(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockChannel("telegram", al)

	if err := d.Register("telegram", ch); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.Unregister("telegram")
	if _, ok := d.Get("telegram"); ok {
		t.Error("channel still registered after Unregister")
	}

	// Unknown names are a no-op.
	d.Unregister("nonexistent")
}

func TestDispatcher_GetMissing(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	_, ok := d.Get("nonexistent")
	if ok {
		t.Error("Get should return false for unknown channel")
	}
}

func TestDispatcher_SendDispatchesToCorrectChannel(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	ch1 := channeltest.NewMockChannel("ch1", al)
	ch2 := channeltest.NewMockChannel("ch2", al)
	_ = d.Register("ch1", ch1)
	_ = d.Register("ch2", ch2)

	msg := message.OutboundMessage{
		Channel: "ch2",
		Chat:    message.Chat{ID: "chat-1"},
		Blocks:  []message.Block{message.TextBlock("hello")},
	}

	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(ch1.SentMessages()) != 0 {
		t.Error("ch1 should not have received any messages")
	}
	sent := ch2.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("ch2 should have received 1 message, got %d", len(sent))
	}
	if sent[0].Blocks[0].Text != "hello" {
		t.Error("ch2 received wrong message content")
	}
}

func TestDispatcher_SendUnknownChannel(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	msg := message.OutboundMessage{
		Channel: "unknown",
		Chat:    message.Chat{ID: "chat-1"},
	}
	err := d.Send(context.Background(), msg)
	if !errors.Is(err, channel.ErrNoChannel) {
		t.Errorf("Send = %v, want ErrNoChannel", err)
	}
}

func TestDispatcher_SendPropagatesChannelError(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockChannel("flaky", al)
	sendErr := errors.New("platform down")
	ch.SendFunc = func(_ context.Context, _ message.OutboundMessage) error {
		return sendErr
	}
	_ = d.Register("flaky", ch)

	err := d.Send(context.Background(), message.OutboundMessage{Channel: "flaky"})
	if !errors.Is(err, sendErr) {
		t.Errorf("Send = %v, want channel error", err)
	}
}

func TestDispatcher_Channels(t *testing.T) {
	t.Parallel()
	d := channel.NewDispatcher()
	al := channel.NewAllowList([]string{"alice"}, nil)
	_ = d.Register("a", channeltest.NewMockChannel("a", al))
	_ = d.Register("b", channeltest.NewMockChannel("b", al))

	names := d.Channels()
	if len(names) != 2 {
		t.Fatalf("Channels() = %v, want 2 names", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("Channels() = %v, want a and b", names)
	}
}
