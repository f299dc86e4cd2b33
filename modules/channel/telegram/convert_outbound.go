package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/pkg/message"
)

// sendOutbound sends an OutboundMessage through the Telegram API,
// splitting it when it exceeds the configured maximum length.
func (t *Telegram) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	chunks := channel.SplitMessage(msg, channel.ChunkConfig{
		MaxLength:      t.config.MaxMessageLength,
		PreserveBlocks: true,
	})

	chatID, err := strconv.ParseInt(msg.Chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", msg.Chat.ID, err)
	}

	for _, chunk := range chunks {
		if err := t.sendChunk(ctx, chunk, chatID); err != nil {
			return err
		}
	}

	return nil
}

// sendChunk dispatches a single chunk's blocks to the appropriate API
// methods. Fail-fast: the first failed block aborts the rest so partial
// delivery is never reported as success.
func (t *Telegram) sendChunk(ctx context.Context, chunk message.OutboundMessage, chatID int64) error {
	threadID := parseOptionalInt(chunk.ThreadID, t.logger)
	replyToID := parseOptionalInt(chunk.ReplyToID, t.logger)
	parseMode := chunk.Hints.ParseMode
	disablePreview := chunk.Hints.DisablePreview
	disableNotification := chunk.Hints.DisableNotification

	for _, block := range chunk.Blocks {
		if err := t.throttle.wait(ctx, chatID); err != nil {
			return fmt.Errorf("telegram: throttled send cancelled: %w", err)
		}

		var err error

		switch block.Kind {
		case message.KindText:
			text := block.Text
			pm := parseMode
			if pm == "" {
				text = FormatMarkdownV2(text)
				pm = "MarkdownV2"
			}
			_, err = t.client.SendMessage(ctx, SendMessageRequest{
				ChatID:                chatID,
				Text:                  text,
				ParseMode:             pm,
				MessageThreadID:       threadID,
				ReplyToMessageID:      replyToID,
				DisableWebPagePreview: disablePreview,
				DisableNotification:   disableNotification,
			})

		case message.KindImage:
			caption, pm := formatCaption(block.Caption, parseMode)
			_, err = t.client.SendPhoto(ctx, SendPhotoRequest{
				ChatID:              chatID,
				Photo:               block.URL,
				Caption:             caption,
				ParseMode:           pm,
				MessageThreadID:     threadID,
				ReplyToMessageID:    replyToID,
				DisableNotification: disableNotification,
			})

		case message.KindAudio:
			caption, pm := formatCaption(block.Caption, parseMode)
			if block.Voice {
				_, err = t.client.SendVoice(ctx, SendVoiceRequest{
					ChatID:              chatID,
					Voice:               block.URL,
					Caption:             caption,
					ParseMode:           pm,
					MessageThreadID:     threadID,
					ReplyToMessageID:    replyToID,
					DisableNotification: disableNotification,
				})
			} else {
				_, err = t.client.SendAudio(ctx, SendAudioRequest{
					ChatID:              chatID,
					Audio:               block.URL,
					Caption:             caption,
					ParseMode:           pm,
					MessageThreadID:     threadID,
					ReplyToMessageID:    replyToID,
					DisableNotification: disableNotification,
				})
			}

		case message.KindFile:
			caption, pm := formatCaption(block.Caption, parseMode)
			_, err = t.client.SendDocument(ctx, SendDocumentRequest{
				ChatID:              chatID,
				Document:            block.URL,
				Caption:             caption,
				ParseMode:           pm,
				MessageThreadID:     threadID,
				ReplyToMessageID:    replyToID,
				DisableNotification: disableNotification,
			})

		case message.KindLocation:
			if block.Lat == nil || block.Lon == nil {
				t.logger.Warn("skipping location block with nil coordinates",
					"chat_id", chatID,
					"has_lat", block.Lat != nil,
					"has_lon", block.Lon != nil,
				)
				continue
			}
			_, err = t.client.SendLocation(ctx, SendLocationRequest{
				ChatID:              chatID,
				Latitude:            *block.Lat,
				Longitude:           *block.Lon,
				MessageThreadID:     threadID,
				ReplyToMessageID:    replyToID,
				DisableNotification: disableNotification,
			})

		case message.KindReaction:
			// A reaction targets the message the chunk replies to.
			if replyToID == 0 {
				t.logger.Warn("skipping reaction block without reply target",
					"chat_id", chatID,
					"emoji", block.Emoji,
				)
				continue
			}
			err = t.client.SetMessageReaction(ctx, chatID, replyToID, block.Emoji)

		default:
			// Raw and unknown block kinds have no Telegram rendering.
			continue
		}

		if err != nil {
			return fmt.Errorf("telegram: send %s block: %w", block.Kind, err)
		}
	}

	return nil
}

// formatCaption applies the automatic MarkdownV2 conversion to a media
// caption when no explicit parse mode was hinted.
func formatCaption(caption, parseMode string) (string, string) {
	if parseMode == "" && caption != "" {
		return FormatMarkdownV2(caption), "MarkdownV2"
	}
	return caption, parseMode
}

// parseOptionalInt converts a string to int, returning 0 for empty
// strings. Non-empty garbage is logged and dropped rather than failing
// the whole send.
func parseOptionalInt(s string, logger *slog.Logger) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Warn("ignoring non-numeric message id",
			"value", s,
			"error", err,
		)
		return 0
	}
	return v
}
