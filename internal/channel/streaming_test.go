package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/channel/channeltest"
	"github.com/heraldbot/herald/pkg/message"
)

func TestStartTypingLoop_SendsUntilCancelled(t *testing.T) {
	t.Parallel()

	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockStreamingChannel("test", al)
	chat := message.Chat{ID: "chat-1"}

	ctx, cancel := context.WithCancel(context.Background())
	channel.StartTypingLoop(ctx, ch, chat, 10*time.Millisecond)

	// Wait for the immediate indicator plus at least one tick.
	deadline := time.After(time.Second)
	for len(ch.TypingChats()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d typing indicators before deadline", len(ch.TypingChats()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	// After cancel the count settles.
	time.Sleep(30 * time.Millisecond)
	n := len(ch.TypingChats())
	time.Sleep(30 * time.Millisecond)
	if got := len(ch.TypingChats()); got != n {
		t.Errorf("typing indicators kept arriving after cancel: %d -> %d", n, got)
	}

	if ch.TypingChats()[0].ID != "chat-1" {
		t.Errorf("typing chat = %q, want chat-1", ch.TypingChats()[0].ID)
	}
}

func TestMockStreamingChannel_CollectsChunks(t *testing.T) {
	t.Parallel()

	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockStreamingChannel("test", al)

	stream := make(chan string, 3)
	stream <- "one "
	stream <- "two "
	stream <- "three"
	close(stream)

	if err := ch.SendStream(context.Background(), message.Chat{ID: "c"}, stream); err != nil {
		t.Fatalf("SendStream: %v", err)
	}

	chunks := ch.StreamChunks()
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0] != "one " || chunks[2] != "three" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestMockStreamingChannel_SupportsStreamingOverride(t *testing.T) {
	t.Parallel()

	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockStreamingChannel("test", al)

	if !ch.SupportsStreaming() {
		t.Error("streaming should default to supported")
	}
	ch.SupportsStreamingFunc = func() bool { return false }
	if ch.SupportsStreaming() {
		t.Error("override should disable streaming")
	}
}
