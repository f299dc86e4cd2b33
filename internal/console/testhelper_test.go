package console

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configureConsole(t *testing.T, m *Console, cfgYAML string) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(cfgYAML), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	// yaml.Unmarshal wraps in a document node; pass the first child.
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
}

// newTestConsole builds a provisioned console behind an httptest server.
// A non-nil ring is registered as the "console.ring" service so tail
// requests work.
func newTestConsole(t *testing.T, cfgYAML string, ring *Ring) (*Console, *httptest.Server) {
	t.Helper()

	m := &Console{}
	configureConsole(t, m, cfgYAML)

	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), t.TempDir())
	if ring != nil {
		appCtx.RegisterService("console.ring", ring)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	svc, ok := appCtx.GetService("console.handler")
	if !ok {
		t.Fatal("console.handler service not registered")
	}
	srv := httptest.NewServer(svc.(http.Handler))
	t.Cleanup(srv.Close)
	return m, srv
}

func dialConsole(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() {
		_ = ws.Close(websocket.StatusNormalClosure, "")
	})
	return ws
}

func sendEnvelope(t *testing.T, ctx context.Context, ws *websocket.Conn, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func readEnvelope(t *testing.T, ctx context.Context, ws *websocket.Conn) Envelope {
	t.Helper()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

// hello performs the handshake and returns the hello_ack envelope.
func hello(t *testing.T, ctx context.Context, ws *websocket.Conn) Envelope {
	t.Helper()
	payload, _ := json.Marshal(HelloPayload{Client: "herald-console-test"})
	sendEnvelope(t, ctx, ws, Envelope{Type: MsgHello, ID: "h1", Payload: payload, TS: time.Now()})

	ack := readEnvelope(t, ctx, ws)
	if ack.Type != MsgHelloAck {
		t.Fatalf("first reply type = %q, want %q", ack.Type, MsgHelloAck)
	}
	return ack
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		t.Fatalf("unmarshal %s payload: %v", env.Type, err)
	}
	return out
}
