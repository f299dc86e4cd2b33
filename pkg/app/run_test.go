package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heraldbot/herald/internal/config"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/provider/providertest"
	"github.com/heraldbot/herald/internal/security"
	"github.com/heraldbot/herald/internal/tool"
	"github.com/heraldbot/herald/pkg/message"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveConfigPath_ExplicitEnv(t *testing.T) {
	t.Setenv("HERALD_CONFIG", "/etc/herald/custom.yaml")

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/etc/herald/custom.yaml" {
		t.Errorf("got %q, want the HERALD_CONFIG value", got)
	}
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	t.Setenv("HERALD_CONFIG", "")
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "herald")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "herald.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("HERALD_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")

	// Also ensure there's no herald.yaml in the current directory.
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	_, err := ResolveConfigPath()
	if err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	got := DefaultDataDir()
	want := "/custom/data/herald"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	_ = os.Unsetenv("XDG_DATA_HOME")

	got := DefaultDataDir()
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".local", "share", "herald")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultWorkspace(t *testing.T) {
	got := DefaultWorkspace()
	cwd, _ := os.Getwd()
	if got != cwd {
		t.Errorf("got %q, want %q", got, cwd)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"})
	if err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := Run(RunParams{ConfigPath: path})
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noversion.yaml")
	if err := os.WriteFile(path, []byte("modules:\n  foo: {}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := Run(RunParams{ConfigPath: path})
	if err == nil {
		t.Error("expected validation error")
	}
}

// stubChannel is a registered channel module that records wiring and
// outbound messages.
type stubChannel struct {
	id    string
	inbox func(message.InboundMessage) error

	mu   sync.Mutex
	sent []message.OutboundMessage
}

func (c *stubChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(c.id),
		New: func() core.Module { return c },
	}
}

func (c *stubChannel) Send(_ context.Context, msg message.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *stubChannel) SetInbox(fn func(message.InboundMessage) error) {
	c.inbox = fn
}

func (c *stubChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// stubProvider is a registered provider module backed by a static mock.
type stubProvider struct {
	provider.Provider
	id string
}

func (p *stubProvider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(p.id),
		New: func() core.Module { return p },
	}
}

func (p *stubProvider) ChainEntry() provider.ChainEntry {
	return provider.ChainEntry{Name: p.id, Provider: p, Role: provider.RolePrimary}
}

func loadStubApp(t *testing.T, ids []string) (*core.App, *core.AppContext) {
	t.Helper()
	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), t.TempDir())
	application := core.NewApp(appCtx)
	if err := application.LoadModules(ids); err != nil {
		t.Fatalf("loading modules: %v", err)
	}
	return application, appCtx
}

func TestWireRouter_BuildsAndRegisters(t *testing.T) {
	ch := &stubChannel{id: "channel.wiretest"}
	core.RegisterModule(ch)
	core.RegisterModule(&stubProvider{id: "provider.wiretest", Provider: providertest.Static("stub-model", "pong")})

	ids := []string{"provider.wiretest", "channel.wiretest"}
	application, appCtx := loadStubApp(t, ids)

	cfg := &config.Config{
		Version: "1",
		Agent:   &config.AgentConfig{SystemPrompt: "be brief", MaxIdle: "45m"},
	}
	rl := security.NewRateLimiter(security.RateLimitConfig{})

	if err := wireRouter(application, appCtx, cfg, ids, discardLogger(), rl); err != nil {
		t.Fatalf("wireRouter: %v", err)
	}

	if ch.inbox == nil {
		t.Error("channel inbox not wired")
	}
	if _, ok := application.Module("router"); !ok {
		t.Error("router not appended to lifecycle")
	}
	for _, key := range []string{"router", "provider.chain", "heartbeat.target"} {
		if _, ok := appCtx.GetService(key); !ok {
			t.Errorf("service %q not registered", key)
		}
	}
}

func TestWireRouter_NoChannels(t *testing.T) {
	core.RegisterModule(&stubProvider{id: "provider.lonely", Provider: providertest.Static("stub-model", "pong")})

	ids := []string{"provider.lonely"}
	application, appCtx := loadStubApp(t, ids)

	cfg := &config.Config{Version: "1"}
	rl := security.NewRateLimiter(security.RateLimitConfig{})

	if err := wireRouter(application, appCtx, cfg, ids, discardLogger(), rl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := appCtx.GetService("router"); ok {
		t.Error("router should not be registered without channels")
	}
}

func TestWireRouter_ChannelsWithoutProvider(t *testing.T) {
	core.RegisterModule(&stubChannel{id: "channel.orphan"})

	ids := []string{"channel.orphan"}
	application, appCtx := loadStubApp(t, ids)

	cfg := &config.Config{Version: "1"}
	rl := security.NewRateLimiter(security.RateLimitConfig{})

	err := wireRouter(application, appCtx, cfg, ids, discardLogger(), rl)
	if err == nil {
		t.Fatal("expected error when channels are loaded without a provider")
	}
	if !strings.Contains(err.Error(), "provider") {
		t.Errorf("error should mention the missing provider: %v", err)
	}
}

func TestWireRouter_BadMaxIdle(t *testing.T) {
	core.RegisterModule(&stubChannel{id: "channel.badidle"})
	core.RegisterModule(&stubProvider{id: "provider.badidle", Provider: providertest.Static("stub-model", "pong")})

	ids := []string{"provider.badidle", "channel.badidle"}
	application, appCtx := loadStubApp(t, ids)

	cfg := &config.Config{
		Version: "1",
		Agent:   &config.AgentConfig{MaxIdle: "whenever"},
	}
	rl := security.NewRateLimiter(security.RateLimitConfig{})

	err := wireRouter(application, appCtx, cfg, ids, discardLogger(), rl)
	if err == nil {
		t.Fatal("expected error for malformed max_idle")
	}
	if !strings.Contains(err.Error(), "max_idle") {
		t.Errorf("error should mention max_idle: %v", err)
	}
}

func TestWireRouter_MessageFlow(t *testing.T) {
	ch := &stubChannel{id: "channel.flowtest"}
	core.RegisterModule(ch)
	core.RegisterModule(&stubProvider{id: "provider.flowtest", Provider: providertest.Static("stub-model", "pong")})

	ids := []string{"provider.flowtest", "channel.flowtest"}
	application, appCtx := loadStubApp(t, ids)

	cfg := &config.Config{Version: "1"}
	rl := security.NewRateLimiter(security.RateLimitConfig{})
	if err := wireRouter(application, appCtx, cfg, ids, discardLogger(), rl); err != nil {
		t.Fatalf("wireRouter: %v", err)
	}

	mod, ok := application.Module("router")
	if !ok {
		t.Fatal("router not appended to lifecycle")
	}
	if err := mod.(core.Starter).Start(); err != nil {
		t.Fatalf("starting router: %v", err)
	}
	t.Cleanup(func() { _ = mod.(core.Stopper).Stop(context.Background()) })

	// The dispatcher key is the module ID's last segment, and inbound
	// messages must carry it for the reply to find its way back.
	msg := message.InboundMessage{
		ID:      "flow-1",
		Channel: "flowtest",
		Sender:  message.Sender{ID: "user-1"},
		Chat:    message.Chat{ID: "100", Kind: message.KindDM},
		Blocks:  []message.Block{message.TextBlock("hello")},
	}
	if err := ch.inbox(msg); err != nil {
		t.Fatalf("submitting message: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for ch.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the reply")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ch.mu.Lock()
	reply := ch.sent[0]
	ch.mu.Unlock()
	if got := reply.TextContent(); got != "pong" {
		t.Errorf("reply text = %q, want %q", got, "pong")
	}
	if reply.Chat.ID != "100" {
		t.Errorf("reply chat = %q, want %q", reply.Chat.ID, "100")
	}
}

// echoTool is a minimal registry entry for definition conversion tests.
type echoTool struct{}

func (echoTool) Name() string            { return "echo" }
func (echoTool) Description() string     { return "echoes its input" }
func (echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(_ context.Context, args json.RawMessage) (tool.Output, error) {
	return tool.Output{Content: string(args)}, nil
}

func TestToolDefinitions(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(echoTool{}); err != nil {
		t.Fatalf("registering tool: %v", err)
	}

	defs := toolDefinitions(reg)()
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	if defs[0].Name != "echo" {
		t.Errorf("name = %q, want %q", defs[0].Name, "echo")
	}
	if string(defs[0].Parameters) != `{"type":"object"}` {
		t.Errorf("parameters = %s, want the tool schema", defs[0].Parameters)
	}
}
