package redis

import (
	"context"
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

func TestModule_ModuleInfo(t *testing.T) {
	t.Parallel()

	m := &Module{}
	info := m.ModuleInfo()
	if info.ID != "memory.redis" {
		t.Errorf("ID = %q, want %q", info.ID, "memory.redis")
	}
	if fresh := info.New(); fresh == core.Module(m) {
		t.Error("New() should return a fresh instance")
	}
}

func TestConfigure_Defaults(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustYAMLNode(t, `url: "redis://localhost:6379/0"`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if m.config.KeyPrefix != "herald:" {
		t.Errorf("KeyPrefix = %q, want herald:", m.config.KeyPrefix)
	}
}

func TestProvision_ParsesTTL(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustYAMLNode(t, `
url: "redis://localhost:6379/0"
key_prefix: "bot:"
ttl: 90m
`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if m.config.ttl != 90*time.Minute {
		t.Errorf("ttl = %v, want 90m", m.config.ttl)
	}
	if m.config.KeyPrefix != "bot:" {
		t.Errorf("KeyPrefix = %q, want bot:", m.config.KeyPrefix)
	}
}

func TestProvision_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing url", yaml: `key_prefix: "x:"`},
		{name: "bad url", yaml: `url: "://nope"`},
		{name: "bad ttl", yaml: "url: \"redis://localhost:6379\"\nttl: sometimes"},
		{name: "negative ttl", yaml: "url: \"redis://localhost:6379\"\nttl: -5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &Module{}
			if err := m.Configure(mustYAMLNode(t, tt.yaml)); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if err := m.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err == nil {
				t.Error("expected Provision error")
			}
		})
	}
}

func TestProvision_RegistersServices(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustYAMLNode(t, `url: "redis://localhost:6379/0"`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	// NewClient does not dial, so provisioning needs no server.
	appCtx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	for _, key := range []string{"memory.history", "memory.kv", "status.redis"} {
		if _, ok := appCtx.GetService(key); !ok {
			t.Errorf("service %q not registered", key)
		}
	}
}

func TestKeyComposition(t *testing.T) {
	t.Parallel()

	h := &historyStore{prefix: "herald:"}
	if got := h.historyKey("telegram/42"); got != "herald:history:telegram/42" {
		t.Errorf("historyKey = %q", got)
	}
	if got := h.summaryKey("telegram/42"); got != "herald:summary:telegram/42" {
		t.Errorf("summaryKey = %q", got)
	}

	kv := &kvStore{prefix: "herald:"}
	if got := kv.kvKey("telegram:offset"); got != "herald:kv:telegram:offset" {
		t.Errorf("kvKey = %q", got)
	}
}

func TestStopBeforeProvision(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
