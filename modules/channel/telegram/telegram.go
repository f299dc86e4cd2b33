package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/gateway"
	"github.com/heraldbot/herald/internal/memory"
	"github.com/heraldbot/herald/pkg/message"
)

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ channel.Channel          = (*Telegram)(nil)
	_ channel.StreamingChannel = (*Telegram)(nil)
	_ channel.TypingChannel    = (*Telegram)(nil)
	_ core.Configurable        = (*Telegram)(nil)
	_ core.Provisioner         = (*Telegram)(nil)
	_ core.Validator           = (*Telegram)(nil)
	_ core.Starter             = (*Telegram)(nil)
	_ core.Stopper             = (*Telegram)(nil)
)

// Telegram implements the Telegram Bot API channel.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *channel.AllowList
	throttle  *throttle
	inbox     func(message.InboundMessage) error
	appCtx    *core.AppContext

	botUser           atomic.Pointer[User]
	streamingDisabled atomic.Bool

	// Set during Start depending on mode.
	poller          *Poller
	webhookReceiver *WebhookReceiver
	dispatcher      *gateway.WebhookDispatcher
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx = ctx
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	t.allowList = channel.NewAllowList(t.config.AllowUsers, t.config.AllowGroups)
	t.throttle = newThrottle(t.config.ChatRate, t.config.GlobalRate)

	ctx.RegisterService("status.telegram", t.statusReport)
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	switch t.config.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", t.config.Mode)
	}
	if t.config.Mode == "webhook" && t.config.WebhookURL == "" {
		return errors.New("telegram: webhook_url is required when mode is \"webhook\"")
	}
	return t.config.validate()
}

// Start implements core.Starter. It verifies the bot token against the
// API, then begins receiving updates in the configured mode.
func (t *Telegram) Start() error {
	if t.inbox == nil {
		return errors.New("telegram: inbox not set, call SetInbox before Start")
	}

	user, err := t.client.GetMe(context.Background())
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser.Store(user)
	t.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	channelName := t.ModuleInfo().ID.Name()

	switch t.config.Mode {
	case "polling":
		// A leftover webhook makes getUpdates fail with 409 Conflict.
		if err := t.client.DeleteWebhook(context.Background(), t.config.DropPending); err != nil {
			t.logger.Warn("deleting stale webhook failed", "error", err)
		}
		t.poller = NewPoller(
			t.client, t.inbox, t.allowList, t.lookupKV(), t.logger,
			user.Username, channelName, t.config,
		)
		t.poller.Start()
		t.logger.Info("telegram polling started",
			"timeout", t.config.PollingTimeout,
			"drop_pending", t.config.DropPending,
		)

	case "webhook":
		if t.config.WebhookSecret == "" {
			t.logger.Warn("telegram webhook running without webhook_secret")
		}
		t.webhookReceiver = NewWebhookReceiver(
			t.client, t.inbox, t.allowList, t.logger,
			user.Username, channelName, t.config.WebhookSecret,
		)

		if err := t.registerWebhook(channelName); err != nil {
			return err
		}

		if err := t.client.SetWebhook(context.Background(), SetWebhookRequest{
			URL:            t.config.WebhookURL,
			SecretToken:    t.config.WebhookSecret,
			AllowedUpdates: t.config.AllowedUpdates,
		}); err != nil {
			return fmt.Errorf("telegram: setWebhook failed: %w", err)
		}
		t.logger.Info("telegram webhook configured",
			"url", t.config.WebhookURL,
		)
	}

	return nil
}

// registerWebhook resolves the gateway's webhook dispatcher from the
// service registry and registers the receiver under the channel name.
func (t *Telegram) registerWebhook(source string) error {
	svc, ok := t.appCtx.GetService("gateway.webhooks")
	if !ok {
		return errors.New("telegram: gateway.webhooks service not found (is the gateway module loaded?)")
	}

	dispatcher, ok := svc.(*gateway.WebhookDispatcher)
	if !ok {
		return errors.New("telegram: gateway.webhooks is not a *gateway.WebhookDispatcher")
	}

	// Empty HMAC secret: Telegram authenticates with its own
	// X-Telegram-Bot-Api-Secret-Token header, checked in the receiver.
	dispatcher.Register(source, t.webhookReceiver, "")
	t.dispatcher = dispatcher
	return nil
}

// lookupKV returns the key-value store service when a memory backend is
// loaded, or nil.
func (t *Telegram) lookupKV() memory.KVStore {
	svc, ok := t.appCtx.GetService("memory.kv")
	if !ok {
		return nil
	}
	kv, _ := svc.(memory.KVStore)
	return kv
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	t.logger.Info("telegram channel stopping")

	switch t.config.Mode {
	case "polling":
		if t.poller != nil {
			t.poller.Stop()
		}
	case "webhook":
		if t.dispatcher != nil {
			t.dispatcher.Unregister(t.ModuleInfo().ID.Name())
		}
		if err := t.client.DeleteWebhook(ctx, false); err != nil {
			t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}

	return nil
}

// Send implements channel.Channel.
func (t *Telegram) Send(ctx context.Context, msg message.OutboundMessage) error {
	return t.sendOutbound(ctx, msg)
}

// SetInbox implements channel.Channel.
func (t *Telegram) SetInbox(fn func(msg message.InboundMessage) error) {
	t.inbox = fn
}

// SendTyping implements channel.TypingChannel.
func (t *Telegram) SendTyping(ctx context.Context, chat message.Chat) error {
	chatID, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", chat.ID, err)
	}
	return t.client.SendChatAction(ctx, chatID, "typing")
}

// statusReport feeds the gateway's status endpoint.
func (t *Telegram) statusReport() map[string]any {
	report := map[string]any{
		"mode":      t.config.Mode,
		"streaming": !t.streamingDisabled.Load(),
	}
	if u := t.botUser.Load(); u != nil {
		report["bot"] = u.Username
	}
	return report
}
