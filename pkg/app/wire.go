package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heraldbot/herald/internal/agent"
	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/config"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/heartbeat"
	"github.com/heraldbot/herald/internal/memory"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/router"
	"github.com/heraldbot/herald/internal/security"
	"github.com/heraldbot/herald/internal/telemetry"
	"github.com/heraldbot/herald/internal/tool"
	"github.com/heraldbot/herald/pkg/message"
)

// routerModule wraps the runtime-built router and provider chain to
// satisfy core.Module, core.Starter, and core.Stopper, so both join
// the App lifecycle.
type routerModule struct {
	router *router.Router
	chain  *provider.Chain
	ctx    context.Context
	cancel context.CancelFunc
}

func (m *routerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "router"}
}

func (m *routerModule) Start() error {
	m.chain.Start(m.ctx)
	m.router.Start(m.ctx)
	return nil
}

func (m *routerModule) Stop(ctx context.Context) error {
	m.router.Stop(ctx)
	m.chain.Stop()
	m.cancel()
	return nil
}

// chainFactory builds one agent loop per turn over the shared
// provider chain and tool registry.
type chainFactory struct {
	chain    *provider.Chain
	registry *tool.Registry
	loopCfg  agent.LoopConfig
}

func (f *chainFactory) ForSession(_ *router.Session, _ message.InboundMessage) (*agent.Loop, error) {
	completer := agent.RoleCompleter{Chain: f.chain, Role: provider.RolePrimary}
	executor := agent.NewToolExecutor(f.registry, f.loopCfg.ToolTimeout)
	return agent.NewLoop(completer, executor, f.loopCfg), nil
}

// heartbeatTarget adapts the router to the heartbeat's Target
// interface, keeping the two packages free of each other.
type heartbeatTarget struct {
	router *router.Router
}

func (t heartbeatTarget) RangeActive(fn func(sessionID string, lastActive time.Time) bool) {
	t.router.Sessions().Range(func(key router.SessionKey, s *router.Session) bool {
		return fn(key.String(), s.LastActiveAt)
	})
}

func (t heartbeatTarget) Poke(ctx context.Context, sessionID, prompt string) error {
	return t.router.Poke(ctx, sessionID, prompt)
}

// toolDefinitions adapts the registry's schemas to the provider wire
// format on every call, so tools registered after wiring (MCP servers
// that reconnect) are offered without rebuilding the router.
func toolDefinitions(registry *tool.Registry) func() []provider.ToolDefinition {
	return func() []provider.ToolDefinition {
		schemas := registry.Schemas()
		defs := make([]provider.ToolDefinition, len(schemas))
		for i, s := range schemas {
			defs[i] = provider.ToolDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			}
		}
		return defs
	}
}

// wireRouter discovers channels and chain members among the loaded
// modules, builds the dispatcher, failover chain, and router, and
// appends them to the app lifecycle. Must run after LoadModules and
// before Start.
func wireRouter(
	app *core.App,
	appCtx *core.AppContext,
	cfg *config.Config,
	ids []string,
	logger *slog.Logger,
	rateLimiter *security.RateLimiter,
) error {
	dispatcher := channel.NewDispatcher()
	var channels []channel.Channel
	var entries []provider.ChainEntry

	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		if ch, ok := mod.(channel.Channel); ok {
			// Channels tag inbound messages with ModuleInfo().ID.Name(),
			// so the dispatcher key must match it.
			name := ch.ModuleInfo().ID.Name()
			if err := dispatcher.Register(name, ch); err != nil {
				return fmt.Errorf("wire: registering channel %s: %w", id, err)
			}
			channels = append(channels, ch)
			logger.Info("wire: channel registered", "channel", name)
		}
		if member, ok := mod.(provider.ChainMember); ok {
			entries = append(entries, member.ChainEntry())
			logger.Info("wire: provider joined chain", "module", id)
		}
	}

	if len(channels) == 0 {
		logger.Warn("wire: no channel modules loaded, router not built")
		return nil
	}
	if len(entries) == 0 {
		return fmt.Errorf("wire: channel modules need a provider module, none loaded")
	}

	var ag config.AgentConfig
	if cfg.Agent != nil {
		ag = *cfg.Agent
	}

	var maxIdle time.Duration
	if ag.MaxIdle != "" {
		d, err := time.ParseDuration(ag.MaxIdle)
		if err != nil {
			return fmt.Errorf("wire: agent.max_idle: %w", err)
		}
		maxIdle = d
	}

	policy := router.GroupPolicy{
		Mode:      router.GroupPolicyMode(ag.GroupPolicy.Mode),
		Allowlist: ag.GroupPolicy.Allow,
		Denylist:  ag.GroupPolicy.Deny,
	}
	if policy.Mode == "" {
		policy.Mode = router.GroupPolicyRequireMention
	}

	pokeAck := ag.PokeAck
	if pokeAck == "" {
		pokeAck = heartbeat.AckToken
	}

	tracer := telemetry.TracerFrom(appCtx)

	chain, err := provider.NewChain(entries,
		provider.WithLogger(logger),
		provider.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("wire: building provider chain: %w", err)
	}
	appCtx.RegisterService("provider.chain", chain)

	// Session history survives restarts only when a memory module is
	// loaded; otherwise it lives and dies with the process.
	var history memory.HistoryStore = memory.NewInMemoryStore()
	if svc, ok := appCtx.GetService("memory.history"); ok {
		if h, ok := svc.(memory.HistoryStore); ok {
			history = h
			logger.Info("wire: persistent history store attached")
		}
	}

	var registry *tool.Registry
	if svc, ok := appCtx.GetService("tool.registry"); ok {
		registry, _ = svc.(*tool.Registry)
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}

	factory := &chainFactory{
		chain:    chain,
		registry: registry,
		loopCfg: agent.LoopConfig{
			MaxIterations: ag.MaxIterations,
			TokenBudget:   ag.TokenBudget,
		},
	}

	var maxMessageBytes int
	if cfg.Security != nil {
		maxMessageBytes = cfg.Security.MaxMessageBytes
	}

	// Summaries ride the utility role when one is configured, the
	// primary otherwise.
	summaryRole := provider.RolePrimary
	for _, st := range chain.Status() {
		if st.Role == provider.RoleUtility {
			summaryRole = provider.RoleUtility
			break
		}
	}
	compactor := router.NewCompactor(
		agent.NewSummarizer(agent.RoleCompleter{Chain: chain, Role: summaryRole}),
		router.CompactionConfig{Threshold: ag.MaxHistory},
	)

	r, err := router.NewRouter(router.Config{
		WorkerCount:     ag.Workers,
		MaxIdle:         maxIdle,
		MaxSessions:     rateLimiter.MaxSessions(),
		GroupPolicy:     policy,
		AgentFactory:    factory,
		ResponseSender:  dispatcher,
		Logger:          logger,
		ChannelLookup:   dispatcher,
		History:         history,
		Compactor:       compactor,
		SystemPrompt:    ag.SystemPrompt,
		PokeAck:         pokeAck,
		Tools:           toolDefinitions(registry),
		RateLimiter:     rateLimiter,
		MaxMessageBytes: maxMessageBytes,
		MaxHistoryLen:   ag.MaxHistory,
		StreamReplies:   ag.StreamReplies,
		Tracer:          tracer,
	})
	if err != nil {
		return fmt.Errorf("wire: creating router: %w", err)
	}

	for _, ch := range channels {
		ch.SetInbox(r.Submit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.AppendModule("router", &routerModule{
		router: r,
		chain:  chain,
		ctx:    ctx,
		cancel: cancel,
	})

	// The gateway and the scheduler look the router up by service key;
	// the heartbeat pokes it through the adapter.
	appCtx.RegisterService("router", r)
	appCtx.RegisterService("heartbeat.target", heartbeatTarget{router: r})

	logger.Info("wire: router built", "channels", len(channels), "providers", len(entries))
	return nil
}
