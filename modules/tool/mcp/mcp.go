// Package mcp bridges MCP servers into the tool registry. Each
// configured server is launched as a child process speaking MCP over
// stdio, its exported tools are adapted into registry tools named
// <server>_<tool>, and the agent loop calls them like any local tool.
// Server processes inherit a sanitized environment, never the bot's
// credentials.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/security"
	"github.com/heraldbot/herald/internal/tool"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ tool.Tool         = (*remoteTool)(nil)
)

// Module connects configured MCP servers and registers their tools.
type Module struct {
	config   Config
	logger   *slog.Logger
	registry *tool.Registry

	mu      sync.Mutex
	servers []*serverState
}

// serverState tracks one connected server and the registry names it
// contributed, so Stop can take them back out.
type serverState struct {
	name   string
	client serverClient
	tools  []string
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tool.mcp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("mcp: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Servers are launched here so
// their tools are in the registry before any channel starts delivering
// messages. A server that fails to come up is logged and skipped; the
// rest of the bot keeps working without its tools.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	// Validate runs after Provision, too late to stop a process launch.
	if err := m.config.validate(); err != nil {
		return err
	}

	m.logger = ctx.Logger

	svc, ok := ctx.GetService("tool.registry")
	if !ok {
		return errors.New("mcp: tool registry service not available")
	}
	registry, ok := svc.(*tool.Registry)
	if !ok {
		return fmt.Errorf("mcp: unexpected tool registry type %T", svc)
	}
	m.registry = registry

	baseEnv := security.SanitizedEnv(nil)
	if svc, ok := ctx.GetService("security.sanitized_env"); ok {
		if env, ok := svc.([]string); ok {
			baseEnv = env
		}
	}

	version := "dev"
	if svc, ok := ctx.GetService("app.version"); ok {
		if v, ok := svc.(string); ok && v != "" {
			version = v
		}
	}

	names := make([]string, 0, len(m.config.Servers))
	for name := range m.config.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state, err := m.connectServer(name, m.config.Servers[name], baseEnv, version)
		if err != nil {
			m.logger.Error("mcp server failed", "server", name, "error", err)
			continue
		}
		m.mu.Lock()
		m.servers = append(m.servers, state)
		m.mu.Unlock()
	}

	ctx.RegisterService("status.mcp", m.statusReport)
	return nil
}

func (m *Module) connectServer(name string, cfg ServerConfig, baseEnv []string, version string) (*serverState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.startupTimeout)
	defer cancel()

	cli, err := newServerClient(cfg.Command, childEnv(baseEnv, cfg.Env), cfg.Args)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	info, err := initialize(ctx, cli, version)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	remote, err := listTools(ctx, cli)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	allowed := allowSet(cfg.Allow)
	state := &serverState{name: name, client: cli}
	for _, rt := range remote {
		if allowed != nil && !allowed[rt.Name] {
			continue
		}
		delete(allowed, rt.Name)
		adapted := newRemoteTool(cli, name, rt)
		if err := m.registry.Register(adapted); err != nil {
			m.logger.Warn("mcp tool not registered",
				"server", name, "tool", rt.Name, "error", err)
			continue
		}
		state.tools = append(state.tools, adapted.Name())
	}

	for entry := range allowed {
		m.logger.Warn("mcp allow entry matched no tool", "server", name, "tool", entry)
	}

	m.logger.Info("mcp server connected",
		"server", name,
		"implementation", info.ServerInfo.Name,
		"tools", len(state.tools),
	)
	return state, nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper. It unregisters every tool this module
// contributed, then closes the clients, which ends the server
// processes.
func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	servers := m.servers
	m.servers = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range servers {
		for _, name := range s.tools {
			m.registry.Unregister(name)
		}
		if err := s.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: close %s: %w", s.name, err))
		}
	}
	if len(servers) > 0 {
		m.logger.Info("mcp servers stopped", "servers", len(servers))
	}
	return errors.Join(errs...)
}

func (m *Module) statusReport() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	servers := make(map[string]any, len(m.servers))
	total := 0
	for _, s := range m.servers {
		servers[s.name] = len(s.tools)
		total += len(s.tools)
	}
	return map[string]any{
		"servers": servers,
		"tools":   total,
	}
}

func allowSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
