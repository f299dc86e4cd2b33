package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/pkg/message"
)

// WebhookReceiver processes incoming Telegram webhook payloads. It
// implements gateway.WebhookHandler.
type WebhookReceiver struct {
	client      *Client
	inbox       func(message.InboundMessage) error
	allowList   *channel.AllowList
	logger      *slog.Logger
	botUsername string
	channelName string
	secret      string
}

// NewWebhookReceiver creates a new WebhookReceiver.
func NewWebhookReceiver(client *Client, inbox func(message.InboundMessage) error, allowList *channel.AllowList, logger *slog.Logger, botUsername, channelName, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		client:      client,
		inbox:       inbox,
		allowList:   allowList,
		logger:      logger,
		botUsername: botUsername,
		channelName: channelName,
		secret:      secret,
	}
}

// HandleWebhook processes a webhook payload from the gateway dispatcher.
// Once the secret token has been verified the update is acknowledged
// with a nil return even when processing fails: Telegram redelivers
// non-2xx updates, and a payload that failed to parse or route once
// will fail the same way on every retry.
func (w *WebhookReceiver) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return errors.New("telegram: invalid webhook secret token")
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		w.logger.Warn("webhook payload rejected", "error", err)
		return nil
	}

	msg, err := convertInbound(&update, w.botUsername, w.channelName)
	if err != nil {
		w.logger.Debug("skipping webhook update", "update_id", update.UpdateID, "reason", err)
		return nil
	}

	if !w.allowList.IsAllowed(msg) {
		w.logger.Debug("webhook update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return nil
	}

	if err := resolveMediaURLs(ctx, w.client, &msg); err != nil {
		w.logger.Warn("resolving media urls failed",
			"update_id", update.UpdateID,
			"error", err,
		)
	}

	if err := w.inbox(msg); err != nil {
		w.logger.Error("failed to deliver webhook update to inbox",
			"update_id", update.UpdateID,
			"error", err,
		)
	}
	return nil
}
