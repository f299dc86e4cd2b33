package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
)

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()
	if info.ID != "gateway" {
		t.Errorf("module ID = %q, want gateway", info.ID)
	}
	if info.New == nil || info.New() == nil {
		t.Error("ModuleInfo.New must construct a module")
	}
}

func TestGateway_ConfigureAndProvision(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "127.0.0.1:9999"
read_timeout: 5s
write_timeout: 15s
idle_timeout: 2m
shutdown_timeout: 1s
auth:
  bearer_token: "tok"
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if g.config.Bind != "127.0.0.1:9999" {
		t.Errorf("Bind = %q", g.config.Bind)
	}
	if g.config.readTimeout != 5*time.Second {
		t.Errorf("readTimeout = %v, want 5s", g.config.readTimeout)
	}
	if g.config.writeTimeout != 15*time.Second {
		t.Errorf("writeTimeout = %v, want 15s", g.config.writeTimeout)
	}
	if g.config.idleTimeout != 2*time.Minute {
		t.Errorf("idleTimeout = %v, want 2m", g.config.idleTimeout)
	}
	if g.config.shutdownTimeout != time.Second {
		t.Errorf("shutdownTimeout = %v, want 1s", g.config.shutdownTimeout)
	}
	if !g.config.Auth.IsConfigured() {
		t.Error("auth should be configured")
	}
}

func TestGateway_Provision_Defaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want loopback default", g.config.Bind)
	}
	if g.config.readTimeout != 10*time.Second {
		t.Errorf("readTimeout = %v, want 10s", g.config.readTimeout)
	}
	if g.config.writeTimeout != 30*time.Second {
		t.Errorf("writeTimeout = %v, want 30s", g.config.writeTimeout)
	}
	if g.config.idleTimeout != 60*time.Second {
		t.Errorf("idleTimeout = %v, want 60s", g.config.idleTimeout)
	}
	if g.config.shutdownTimeout != 5*time.Second {
		t.Errorf("shutdownTimeout = %v, want 5s", g.config.shutdownTimeout)
	}
}

func TestGateway_Provision_BadDuration(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, `read_timeout: "fast"`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err == nil {
		t.Error("Provision accepted an unparseable duration")
	}
}

func TestGateway_Provision_PublishesDispatcher(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	g := &Gateway{}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	svc, ok := appCtx.GetService("gateway.webhooks")
	if !ok {
		t.Fatal("gateway.webhooks service not registered")
	}
	if svc.(*WebhookDispatcher) != g.dispatcher {
		t.Error("published dispatcher is not the gateway's own")
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bind    string
		wantErr bool
	}{
		{name: "loopback", bind: "127.0.0.1:8080", wantErr: false},
		{name: "all interfaces", bind: ":8080", wantErr: false},
		{name: "bad port", bind: "127.0.0.1:notaport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &Gateway{config: Config{Bind: tt.bind}}
			err := g.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) = %v, wantErr %v", tt.bind, err, tt.wantErr)
			}
		})
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	appCtx.RegisterService("app.version", "9.9.9")

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, `
bind: "127.0.0.1:0"
auth:
  bearer_token: "tok"
`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := "http://" + g.Addr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/status", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer tok")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if status.Version != "9.9.9" {
		t.Errorf("Version = %q, want 9.9.9", status.Version)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := http.Get(base + "/health"); err == nil {
		t.Error("gateway still serving after Stop")
	}
}

func TestGateway_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}
