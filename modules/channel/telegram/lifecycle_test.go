package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/gateway"
	"github.com/heraldbot/herald/pkg/message"
)

// TestLifecycle exercises the full Configure, Provision, Validate,
// Start, inbound message, outbound reply, Stop flow using httptest
// mock servers.
func TestLifecycle(t *testing.T) {
	// Set up a mock Telegram API server.
	var mu sync.Mutex
	var sentMessages []SendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			writeJSON(t, w, APIResponse[User]{
				OK: true,
				Result: User{
					ID:        111,
					IsBot:     true,
					FirstName: "TestBot",
					Username:  "lifecycle_bot",
				},
			})

		case strings.HasSuffix(r.URL.Path, "/deleteWebhook"):
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var req GetUpdatesRequest
			_ = json.Unmarshal(body, &req)

			mu.Lock()
			count := len(sentMessages)
			mu.Unlock()

			// On the first poll, return one update. After that, return empty.
			if req.Offset == 0 && count == 0 {
				writeJSON(t, w, APIResponse[[]Update]{
					OK: true,
					Result: []Update{
						{
							UpdateID: 1,
							Message: &Message{
								MessageID: 100,
								From:      &User{ID: 42, FirstName: "Alice", Username: "alice"},
								Chat:      Chat{ID: 42, Type: "private"},
								Text:      "ping",
								Date:      int(time.Now().Unix()),
							},
						},
					},
				})
			} else {
				writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
				// Slow down polling so we don't spin.
				time.Sleep(50 * time.Millisecond)
			}

		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var req SendMessageRequest
			_ = json.Unmarshal(body, &req)
			mu.Lock()
			sentMessages = append(sentMessages, req)
			mu.Unlock()
			writeJSON(t, w, APIResponse[Message]{
				OK: true,
				Result: Message{
					MessageID: 200,
					Chat:      Chat{ID: req.ChatID, Type: "private"},
					Text:      req.Text,
				},
			})

		case strings.HasSuffix(r.URL.Path, "/sendChatAction"):
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		default:
			t.Logf("unexpected API call: %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// 1. Configure: decode YAML into the module.
	tg := &Telegram{}

	cfgYAML := `
token: "123456:TEST-TOKEN"
mode: "polling"
polling_timeout: 0
allow_users: ["42"]
api_url: "` + srv.URL + `"
`

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(cfgYAML), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	// yaml.Unmarshal wraps in a document node; pass the first child.
	if err := tg.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	if tg.config.Token != "123456:TEST-TOKEN" {
		t.Errorf("config.Token = %q, want %q", tg.config.Token, "123456:TEST-TOKEN")
	}
	if tg.config.Mode != "polling" {
		t.Errorf("config.Mode = %q, want %q", tg.config.Mode, "polling")
	}

	// 2. Provision: set up client, logger, allowlist.
	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), t.TempDir())
	if err := tg.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	if tg.client == nil {
		t.Fatal("client should be set after Provision()")
	}
	if tg.allowList == nil {
		t.Fatal("allowList should be set after Provision()")
	}

	svc, ok := appCtx.GetService("status.telegram")
	if !ok {
		t.Fatal("status.telegram service not registered by Provision()")
	}
	statusFn, ok := svc.(func() map[string]any)
	if !ok {
		t.Fatalf("status.telegram service is %T, want func() map[string]any", svc)
	}

	// 3. Validate.
	if err := tg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	// 4. SetInbox: simulate the router wiring.
	var inboxMu sync.Mutex
	var inboxMessages []message.InboundMessage
	tg.SetInbox(func(msg message.InboundMessage) error {
		inboxMu.Lock()
		inboxMessages = append(inboxMessages, msg)
		inboxMu.Unlock()
		return nil
	})

	// 5. Start: calls getMe, clears any stale webhook, starts polling.
	if err := tg.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Wait for the inbound message to arrive via polling.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		inboxMu.Lock()
		n := len(inboxMessages)
		inboxMu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	inboxMu.Lock()
	if len(inboxMessages) != 1 {
		t.Fatalf("inbox received %d messages, want 1", len(inboxMessages))
	}
	inbound := inboxMessages[0]
	inboxMu.Unlock()

	if inbound.Sender.Username != "alice" {
		t.Errorf("Sender.Username = %q, want %q", inbound.Sender.Username, "alice")
	}
	if inbound.Text() != "ping" {
		t.Errorf("Text() = %q, want %q", inbound.Text(), "ping")
	}

	report := statusFn()
	if report["mode"] != "polling" {
		t.Errorf("status mode = %v, want %q", report["mode"], "polling")
	}
	if report["bot"] != "lifecycle_bot" {
		t.Errorf("status bot = %v, want %q", report["bot"], "lifecycle_bot")
	}

	// 6. Send an outbound reply.
	outbound := message.Text(inbound.Chat, "pong")
	if err := tg.Send(context.Background(), outbound); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	mu.Lock()
	if len(sentMessages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sentMessages))
	}
	if sentMessages[0].Text != "pong" {
		t.Errorf("sent text = %q, want %q", sentMessages[0].Text, "pong")
	}
	mu.Unlock()

	// 7. Verify typing indicator.
	if err := tg.SendTyping(context.Background(), inbound.Chat); err != nil {
		t.Fatalf("SendTyping() error: %v", err)
	}

	// 8. Verify streaming support.
	if !tg.SupportsStreaming() {
		t.Error("SupportsStreaming() = false, want true")
	}

	// 9. Verify interface compliance.
	var _ channel.Channel = tg
	var _ channel.StreamingChannel = tg
	var _ channel.TypingChannel = tg

	// 10. Stop.
	if err := tg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

// TestLifecycleWebhookMode runs the webhook variant: Start registers
// the receiver with the gateway dispatcher and configures the webhook
// with the API; Stop unwinds both.
func TestLifecycleWebhookMode(t *testing.T) {
	var mu sync.Mutex
	var setWebhook SetWebhookRequest
	var webhookDeleted atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			writeJSON(t, w, APIResponse[User]{
				OK: true,
				Result: User{
					ID:       222,
					IsBot:    true,
					Username: "hook_bot",
				},
			})

		case strings.HasSuffix(r.URL.Path, "/setWebhook"):
			mu.Lock()
			_ = json.Unmarshal(body, &setWebhook)
			mu.Unlock()
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		case strings.HasSuffix(r.URL.Path, "/deleteWebhook"):
			webhookDeleted.Store(true)
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		default:
			t.Logf("unexpected API call: %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg := &Telegram{}

	cfgYAML := `
token: "123456:TEST-TOKEN"
mode: "webhook"
webhook_url: "https://bot.example.com/webhooks/telegram"
webhook_secret: "hook-secret"
allow_users: ["42"]
api_url: "` + srv.URL + `"
`
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(cfgYAML), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if err := tg.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), t.TempDir())
	dispatcher := gateway.NewWebhookDispatcher(discardLogger())
	appCtx.RegisterService("gateway.webhooks", dispatcher)

	if err := tg.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := tg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	var inboxMu sync.Mutex
	var inboxMessages []message.InboundMessage
	tg.SetInbox(func(msg message.InboundMessage) error {
		inboxMu.Lock()
		inboxMessages = append(inboxMessages, msg)
		inboxMu.Unlock()
		return nil
	})

	if err := tg.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	sources := dispatcher.Sources()
	if len(sources) != 1 || sources[0] != "telegram" {
		t.Fatalf("dispatcher.Sources() = %v, want [telegram]", sources)
	}

	mu.Lock()
	if setWebhook.URL != "https://bot.example.com/webhooks/telegram" {
		t.Errorf("setWebhook URL = %q, want configured webhook_url", setWebhook.URL)
	}
	if setWebhook.SecretToken != "hook-secret" {
		t.Errorf("setWebhook SecretToken = %q, want %q", setWebhook.SecretToken, "hook-secret")
	}
	mu.Unlock()

	// Deliver an update the way the gateway would.
	update := Update{
		UpdateID: 1,
		Message: &Message{
			MessageID: 100,
			From:      &User{ID: 42, FirstName: "Alice", Username: "alice"},
			Chat:      Chat{ID: 42, Type: "private"},
			Text:      "via webhook",
			Date:      int(time.Now().Unix()),
		},
	}
	body, _ := json.Marshal(update)
	headers := http.Header{}
	headers.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")

	if err := tg.webhookReceiver.HandleWebhook(context.Background(), "telegram", body, headers); err != nil {
		t.Fatalf("HandleWebhook() error: %v", err)
	}

	inboxMu.Lock()
	if len(inboxMessages) != 1 {
		t.Fatalf("inbox received %d messages, want 1", len(inboxMessages))
	}
	if inboxMessages[0].Text() != "via webhook" {
		t.Errorf("Text() = %q, want %q", inboxMessages[0].Text(), "via webhook")
	}
	inboxMu.Unlock()

	if err := tg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := dispatcher.Sources(); len(got) != 0 {
		t.Errorf("dispatcher.Sources() = %v after Stop, want empty", got)
	}
	if !webhookDeleted.Load() {
		t.Error("deleteWebhook not called on Stop")
	}
}

// TestModuleRegistered verifies the module is registered via init().
func TestModuleRegistered(t *testing.T) {
	info, ok := core.GetModule("channel.telegram")
	if !ok {
		t.Fatal("channel.telegram module not registered")
	}
	if info.ID != "channel.telegram" {
		t.Errorf("ID = %q, want %q", info.ID, "channel.telegram")
	}
	if info.New == nil {
		t.Fatal("New function is nil")
	}
	mod := info.New()
	if _, ok := mod.(*Telegram); !ok {
		t.Errorf("New() returned %T, want *Telegram", mod)
	}
}

// TestValidateRejectsEmptyToken verifies that Validate fails without a token.
func TestValidateRejectsEmptyToken(t *testing.T) {
	tg := &Telegram{}
	tg.config.defaults()
	tg.config.Token = ""

	if err := tg.Validate(); err == nil {
		t.Error("Validate() should error with empty token")
	}
}

// TestValidateRejectsInvalidMode verifies that Validate rejects unknown modes.
func TestValidateRejectsInvalidMode(t *testing.T) {
	tg := &Telegram{}
	tg.config.Token = "test"
	tg.config.Mode = "invalid"

	if err := tg.Validate(); err == nil {
		t.Error("Validate() should error with invalid mode")
	}
}

// TestValidateWebhookRequiresURL verifies webhook mode needs a URL.
func TestValidateWebhookRequiresURL(t *testing.T) {
	tg := &Telegram{}
	tg.config.Token = "test"
	tg.config.Mode = "webhook"
	tg.config.WebhookURL = ""

	if err := tg.Validate(); err == nil {
		t.Error("Validate() should error when webhook mode has no URL")
	}
}

// TestValidateChecksTokenFormat verifies that Validate applies the
// config-level field checks, token format included.
func TestValidateChecksTokenFormat(t *testing.T) {
	tg := &Telegram{}
	tg.config.defaults()
	tg.config.Token = "not a telegram token"

	if err := tg.Validate(); err == nil {
		t.Error("Validate() should reject malformed token")
	}
}
