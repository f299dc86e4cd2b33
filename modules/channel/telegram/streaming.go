package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/heraldbot/herald/pkg/message"
)

const streamPlaceholder = "…" // ellipsis

// minFlushDelta is the minimum character delta before flushing an edit
// ahead of the next ticker fire.
const minFlushDelta = 200

// maxConsecutiveFlushErrors disables streaming for the channel once
// hit; plain sends keep working.
const maxConsecutiveFlushErrors = 5

// SupportsStreaming implements channel.StreamingChannel. It reports
// false after repeated streaming failures have disabled streaming.
func (t *Telegram) SupportsStreaming() bool {
	return !t.streamingDisabled.Load()
}

// SendStream delivers a stream of text chunks by editing a placeholder
// message as content arrives.
func (t *Telegram) SendStream(ctx context.Context, chat message.Chat, stream <-chan string) error {
	chatID, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return errors.New("telegram: invalid chat ID: " + chat.ID)
	}

	if err := t.throttle.wait(ctx, chatID); err != nil {
		return err
	}

	placeholder, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID: chatID,
		Text:   streamPlaceholder,
	})
	if err != nil {
		return err
	}

	var buf strings.Builder
	lastFlushed := 0
	overflow := false
	var consecutiveFlushErrors int

	maxLen := t.config.MaxMessageLength
	if maxLen <= 0 {
		maxLen = 4096
	}
	flushEvery := t.config.streamFlush
	if flushEvery <= 0 {
		flushEvery = time.Second
	}

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	flush := func() {
		text := buf.String()
		if len(text) == lastFlushed {
			return
		}
		if len(text) > maxLen {
			text = truncateUTF8(text, maxLen)
		}
		_, editErr := t.client.EditMessageText(ctx, EditMessageTextRequest{
			ChatID:    chatID,
			MessageID: placeholder.MessageID,
			Text:      text,
		})
		if editErr != nil {
			var apiErr *APIError
			if errors.As(editErr, &apiErr) {
				// Telegram rejects edits that change nothing.
				if apiErr.Code == 400 && strings.Contains(apiErr.Description, "not modified") {
					return
				}
				// Rate limited: wait the advertised time, retry once.
				if apiErr.RetryAfter > 0 {
					timer := time.NewTimer(time.Duration(apiErr.RetryAfter) * time.Second)
					select {
					case <-ctx.Done():
						timer.Stop()
						return
					case <-timer.C:
					}
					_, retryErr := t.client.EditMessageText(ctx, EditMessageTextRequest{
						ChatID:    chatID,
						MessageID: placeholder.MessageID,
						Text:      text,
					})
					if retryErr == nil {
						lastFlushed = len(text)
						consecutiveFlushErrors = 0
					}
					return
				}
			}
			consecutiveFlushErrors++
			t.logger.Warn("streaming edit failed",
				"error", editErr,
				"chat_id", chatID,
				"consecutive_errors", consecutiveFlushErrors,
			)
			if consecutiveFlushErrors >= maxConsecutiveFlushErrors {
				t.streamingDisabled.Store(true)
				t.logger.Warn("streaming disabled after repeated errors",
					"chat_id", chatID,
				)
			}
			return
		}
		lastFlushed = len(text)
		consecutiveFlushErrors = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()

		case chunk, ok := <-stream:
			if !ok {
				flush()
				return nil
			}

			if overflow {
				// Keep draining so the producer does not block.
				continue
			}

			buf.WriteString(chunk)

			if buf.Len() > maxLen {
				overflow = true
				t.logger.Warn("streaming message exceeded max length, truncating",
					"max_length", maxLen,
					"chat_id", chatID,
				)
				flush()
			} else if buf.Len()-lastFlushed >= minFlushDelta {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// truncateUTF8 truncates s to at most maxBytes, walking back to a rune
// boundary so the result stays valid UTF-8.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
