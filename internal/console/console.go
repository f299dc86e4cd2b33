// Package console implements the operator WebSocket console. The
// gateway mounts its handler under admin auth; connected operators
// speak a JSON envelope protocol to chat with the agent through the
// router, ping for liveness, and tail recent log lines. The console
// registers itself as the "console" channel so agent replies flow back
// through the dispatcher like any chat platform.
package console

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/pkg/message"
)

const (
	maxMissedPings   = 3
	helloReadTimeout = 10 * time.Second
)

func init() {
	core.RegisterModule(&Console{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Console)(nil)
	_ core.Provisioner  = (*Console)(nil)
	_ core.Validator    = (*Console)(nil)
	_ core.Starter      = (*Console)(nil)
	_ core.Stopper      = (*Console)(nil)
	_ channel.Channel   = (*Console)(nil)
)

// Console is the operator console module.
type Console struct {
	config  Config
	logger  *slog.Logger
	ring    *Ring
	version string

	inbox func(msg message.InboundMessage) error

	mu    sync.Mutex
	conns map[string]*conn

	cancel context.CancelFunc
}

// conn is one connected operator.
type conn struct {
	id     string
	client string
	ws     *websocket.Conn

	mu       sync.Mutex
	lastSeen time.Time
}

func (c *conn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *conn) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

// ModuleInfo implements core.Module.
func (m *Console) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "console",
		New: func() core.Module { return &Console{} },
	}
}

// Configure implements core.Configurable.
func (m *Console) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("console: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It publishes the WebSocket
// handler for the gateway to mount and picks up the log ring installed
// at logger construction, when there is one.
func (m *Console) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.conns = make(map[string]*conn)

	if svc, ok := ctx.GetService("console.ring"); ok {
		if ring, ok := svc.(*Ring); ok {
			m.ring = ring
		}
	}

	m.version = "dev"
	if svc, ok := ctx.GetService("app.version"); ok {
		if v, ok := svc.(string); ok && v != "" {
			m.version = v
		}
	}

	ctx.RegisterService("console.handler", http.HandlerFunc(m.handleWebSocket))
	ctx.RegisterService("status.console", m.statusReport)
	return nil
}

// Validate implements core.Validator.
func (m *Console) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. It launches the liveness sweep.
func (m *Console) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go m.reapLoop(ctx)

	m.logger.Info("console started",
		"max_connections", m.config.MaxConnections,
		"ping_interval", m.config.pingInterval,
	)
	return nil
}

// Stop implements core.Stopper. It cancels background work and closes
// every operator connection.
func (m *Console) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	conns := make([]*conn, 0, len(m.conns))
	for _, cn := range m.conns {
		conns = append(conns, cn)
	}
	m.conns = make(map[string]*conn)
	m.mu.Unlock()

	for _, cn := range conns {
		_ = cn.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}

	m.logger.Info("console stopped")
	return nil
}

// SetInbox implements channel.Channel. Wiring calls it before Start.
func (m *Console) SetInbox(fn func(msg message.InboundMessage) error) {
	m.inbox = fn
}

// Send implements channel.Channel. The dispatcher routes agent replies
// here for messages whose chat ID names a live console connection.
func (m *Console) Send(ctx context.Context, msg message.OutboundMessage) error {
	m.mu.Lock()
	cn, ok := m.conns[msg.Chat.ID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionGone, msg.Chat.ID)
	}

	payload, err := json.Marshal(ChatReplyPayload{Text: msg.TextContent()})
	if err != nil {
		return fmt.Errorf("console: marshal reply: %w", err)
	}
	return m.write(ctx, cn.ws, Envelope{
		Type:    MsgChatReply,
		ID:      msg.ReplyToID,
		Payload: payload,
		TS:      time.Now(),
	})
}

// handleWebSocket runs the full connection lifecycle:
// hello handshake, then the read loop until disconnect.
func (m *Console) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !m.hasCapacity() {
		http.Error(w, "console connection limit reached", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		m.logger.Error("console accept failed", "error", err)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusInternalError, "unexpected close")
	}()

	cn, err := m.handshake(r.Context(), ws)
	if err != nil {
		m.logger.Warn("console handshake failed", "error", err)
		return
	}

	m.logger.Info("console connected", "conn", cn.id, "client", cn.client)
	m.readLoop(r.Context(), cn)

	m.removeConn(cn.id)
	m.logger.Info("console disconnected", "conn", cn.id)
}

// handshake reads the hello message and answers hello_ack. The first
// message must arrive within helloReadTimeout and must be a hello.
func (m *Console) handshake(ctx context.Context, ws *websocket.Conn) (*conn, error) {
	helloCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
	defer cancel()

	_, data, err := ws.Read(helloCtx)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.pushError(ctx, ws, "", "invalid message format")
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != MsgHello {
		m.pushError(ctx, ws, env.ID, "expected hello")
		return nil, fmt.Errorf("unexpected first message type %q", env.Type)
	}

	var hello HelloPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &hello); err != nil {
			m.pushError(ctx, ws, env.ID, "invalid hello payload")
			return nil, fmt.Errorf("unmarshal hello: %w", err)
		}
	}

	id, err := generateConnID()
	if err != nil {
		m.pushError(ctx, ws, env.ID, "internal error")
		return nil, fmt.Errorf("generate conn ID: %w", err)
	}

	cn := &conn{id: id, client: hello.Client, ws: ws, lastSeen: time.Now()}
	if !m.addConn(cn) {
		m.pushError(ctx, ws, env.ID, "console connection limit reached")
		return nil, errors.New("connection limit reached")
	}

	payload, _ := json.Marshal(HelloAckPayload{Server: "herald", Version: m.version})
	m.push(ctx, ws, Envelope{Type: MsgHelloAck, ID: env.ID, Payload: payload, TS: time.Now()})
	return cn, nil
}

func (m *Console) readLoop(ctx context.Context, cn *conn) {
	for {
		_, data, err := cn.ws.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.pushError(ctx, cn.ws, "", "invalid message format")
			continue
		}

		cn.touch()

		switch env.Type {
		case MsgPing:
			m.push(ctx, cn.ws, Envelope{Type: MsgPong, ID: env.ID, TS: time.Now()})

		case MsgChat:
			m.handleChat(ctx, cn, env)

		case MsgTail:
			m.handleTail(ctx, cn, env)

		default:
			m.pushError(ctx, cn.ws, env.ID, fmt.Sprintf("unexpected message type %q", env.Type))
		}
	}
}

// handleChat converts a chat message into the inbound form and submits
// it to the router. Each connection is its own DM session, so replies
// come back through Send with the connection ID as the chat ID.
func (m *Console) handleChat(ctx context.Context, cn *conn, env Envelope) {
	if m.inbox == nil {
		m.pushError(ctx, cn.ws, env.ID, ErrNoInbox.Error())
		return
	}

	var chat ChatPayload
	if err := json.Unmarshal(env.Payload, &chat); err != nil {
		m.pushError(ctx, cn.ws, env.ID, "invalid chat payload")
		return
	}
	if chat.Text == "" {
		m.pushError(ctx, cn.ws, env.ID, "empty chat text")
		return
	}

	inbound := message.InboundMessage{
		ID:        env.ID,
		Timestamp: time.Now(),
		Channel:   "console",
		Sender: message.Sender{
			ID:          cn.id,
			Username:    "operator",
			DisplayName: cn.client,
		},
		Chat:   message.Chat{ID: cn.id, Kind: message.KindDM, Title: "console"},
		Blocks: []message.Block{message.TextBlock(chat.Text)},
	}

	if err := m.inbox(inbound); err != nil {
		m.logger.Warn("console chat rejected", "conn", cn.id, "error", err)
		m.pushError(ctx, cn.ws, env.ID, err.Error())
	}
}

func (m *Console) handleTail(ctx context.Context, cn *conn, env Envelope) {
	if m.ring == nil {
		m.pushError(ctx, cn.ws, env.ID, "log tail not available")
		return
	}

	var req TailPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			m.pushError(ctx, cn.ws, env.ID, "invalid tail payload")
			return
		}
	}

	n := req.Lines
	if n <= 0 || n > m.config.TailLines {
		n = m.config.TailLines
	}

	lines := m.ring.Last(n)
	if lines == nil {
		lines = []string{}
	}
	payload, _ := json.Marshal(TailLinesPayload{Lines: lines})
	m.push(ctx, cn.ws, Envelope{Type: MsgTailLines, ID: env.ID, Payload: payload, TS: time.Now()})
}

func (m *Console) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle closes connections silent for three ping intervals. The
// read loop notices the closed connection and removes the entry.
func (m *Console) reapIdle() {
	threshold := m.config.pingInterval * maxMissedPings
	now := time.Now()

	m.mu.Lock()
	var stale []*conn
	for _, cn := range m.conns {
		if cn.idleSince(now) > threshold {
			stale = append(stale, cn)
		}
	}
	m.mu.Unlock()

	for _, cn := range stale {
		m.logger.Warn("console connection timed out", "conn", cn.id)
		_ = cn.ws.Close(websocket.StatusGoingAway, "ping timeout")
	}
}

func (m *Console) hasCapacity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns) < m.config.MaxConnections
}

// addConn re-checks the limit under the lock; the pre-upgrade check
// races with concurrent upgrades.
func (m *Console) addConn(cn *conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) >= m.config.MaxConnections {
		return false
	}
	m.conns[cn.id] = cn
	return true
}

func (m *Console) removeConn(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

func (m *Console) statusReport() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"connections":     len(m.conns),
		"max_connections": m.config.MaxConnections,
	}
}

func (m *Console) write(ctx context.Context, ws *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("console: marshal envelope: %w", err)
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// push writes an envelope, logging failures instead of returning them;
// read-loop writers have nobody to report to.
func (m *Console) push(ctx context.Context, ws *websocket.Conn, env Envelope) {
	if err := m.write(ctx, ws, env); err != nil {
		m.logger.Warn("console write failed", "error", err)
	}
}

func (m *Console) pushError(ctx context.Context, ws *websocket.Conn, id, msg string) {
	payload, _ := json.Marshal(ErrorPayload{Message: msg})
	m.push(ctx, ws, Envelope{Type: MsgError, ID: id, Payload: payload, TS: time.Now()})
}

func generateConnID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "con-" + hex.EncodeToString(buf[:]), nil
}
