package channel

import (
	"context"
	"time"

	"github.com/heraldbot/herald/pkg/message"
)

// StreamingChannel is implemented by channels that can show a reply
// growing while the model generates it.
type StreamingChannel interface {
	Channel

	// SupportsStreaming reports whether streaming currently works. A
	// channel may disable it at runtime, for example after the platform
	// rejects an edit.
	SupportsStreaming() bool

	// SendStream delivers a stream of text chunks to the platform. The
	// channel aggregates chunks and flushes periodically. The caller
	// closes the stream when the reply is complete; implementations
	// must keep consuming until then even after a delivery failure, or
	// the producer would block.
	SendStream(ctx context.Context, chat message.Chat, stream <-chan string) error
}

// TypingChannel is implemented by channels that can show a typing
// indicator while a reply is being generated.
type TypingChannel interface {
	Channel

	// SendTyping sends a single typing indicator to the platform.
	SendTyping(ctx context.Context, chat message.Chat) error
}

// StartTypingLoop launches a goroutine sending typing indicators at the
// given interval until ctx is cancelled. The first indicator goes out
// immediately. Intervals <= 0 fall back to 4s, matching the lifetime
// of a Telegram typing status.
func StartTypingLoop(ctx context.Context, ch TypingChannel, chat message.Chat, interval time.Duration) {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = ch.SendTyping(ctx, chat)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx, chat)
			}
		}
	}()
}
