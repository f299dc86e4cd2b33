package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/gateway"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Target combines the two capabilities the heartbeat needs from the
// session layer. The app registers an adapter over the router under
// the "heartbeat.target" service key.
type Target interface {
	SessionIterator
	SessionPoker
}

// Module wires the heartbeat engine into the module system: it reads
// the operator config, resolves the poke target at start, and mounts
// the webhook trigger on the gateway when one is loaded.
type Module struct {
	config    moduleConfig
	engineCfg Config
	hb        *Heartbeat
	appCtx    *core.AppContext
	logger    *slog.Logger
}

type moduleConfig struct {
	Interval      string `yaml:"interval,omitempty"`
	Prompt        string `yaml:"prompt,omitempty"`
	QuietHours    string `yaml:"quiet_hours,omitempty"`
	Timezone      string `yaml:"timezone,omitempty"`
	MaxIdleAge    string `yaml:"max_idle_age,omitempty"`
	TriggerSecret string `yaml:"trigger_secret,omitempty"`
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "heartbeat",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("heartbeat: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. It parses the string-form
// config into the engine configuration; the engine itself is built at
// start, once the poke target exists.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	interval, err := parseDuration("interval", m.config.Interval)
	if err != nil {
		return err
	}
	maxIdle, err := parseDuration("max_idle_age", m.config.MaxIdleAge)
	if err != nil {
		return err
	}

	m.engineCfg = Config{
		Interval:   interval,
		Prompt:     m.config.Prompt,
		MaxIdleAge: maxIdle,
		Logger:     ctx.Logger,
	}

	if m.config.QuietHours != "" {
		qh, err := ParseQuietHours(m.config.QuietHours)
		if err != nil {
			return err
		}
		m.engineCfg.QuietHours = &qh
	}

	if m.config.Timezone != "" {
		loc, err := time.LoadLocation(m.config.Timezone)
		if err != nil {
			return fmt.Errorf("heartbeat: invalid timezone %q: %w", m.config.Timezone, err)
		}
		m.engineCfg.Timezone = loc
	}

	return nil
}

// Start implements core.Starter. It resolves the poke target from the
// service registry, starts the engine, and registers the trigger and
// status report.
func (m *Module) Start() error {
	svc, ok := m.appCtx.GetService("heartbeat.target")
	if !ok {
		return errors.New("heartbeat: heartbeat.target service not found (is the router wired?)")
	}
	target, ok := svc.(Target)
	if !ok {
		return fmt.Errorf("heartbeat: heartbeat.target service has type %T, want Target", svc)
	}

	hb, err := New(m.engineCfg, target, target)
	if err != nil {
		return err
	}
	m.hb = hb

	if err := m.hb.Start(context.Background()); err != nil {
		return err
	}

	m.registerTrigger()
	m.appCtx.RegisterService("status.heartbeat", func() map[string]any {
		st := m.hb.Status()
		return map[string]any{
			"running":    st.Running,
			"last_tick":  st.LastTick,
			"last_pokes": st.LastPokes,
			"ticks":      st.Ticks,
			"pokes":      st.Pokes,
			"errors":     st.Errors,
		}
	})
	return nil
}

// registerTrigger mounts the tick trigger on the gateway's webhook
// dispatcher. Without a gateway the heartbeat still runs on its timer.
func (m *Module) registerTrigger() {
	svc, ok := m.appCtx.GetService("gateway.webhooks")
	if !ok {
		m.logger.Debug("heartbeat: no gateway loaded, webhook trigger unavailable")
		return
	}
	dispatcher, ok := svc.(*gateway.WebhookDispatcher)
	if !ok {
		m.logger.Warn("heartbeat: gateway.webhooks service has unexpected type",
			"type", fmt.Sprintf("%T", svc))
		return
	}

	if m.config.TriggerSecret == "" {
		m.logger.Warn("heartbeat: webhook trigger registered without trigger_secret, " +
			"anyone who can reach the gateway can force a tick")
	}
	dispatcher.Register("heartbeat", NewTrigger(m.hb), m.config.TriggerSecret)
	m.logger.Info("heartbeat: webhook trigger registered", "source", "heartbeat")
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.hb == nil {
		return nil
	}
	if err := m.hb.Stop(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
		return err
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
