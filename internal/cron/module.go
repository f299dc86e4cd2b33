package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/router"
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

type jobConfig struct {
	Schedule string `yaml:"schedule,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type pruneJobConfig struct {
	jobConfig `yaml:",inline"`
	MaxIdle   string `yaml:"max_idle,omitempty"`
}

type moduleConfig struct {
	SessionPrune  pruneJobConfig `yaml:"session_prune,omitempty"`
	ProviderProbe jobConfig      `yaml:"provider_probe,omitempty"`
	Maintenance   jobConfig      `yaml:"maintenance,omitempty"`
}

// Module wires the scheduler into the module system. The built-in
// jobs register themselves at start for every collaborator found in
// the service registry; a job whose target is absent is skipped.
type Module struct {
	config    moduleConfig
	maxIdle   time.Duration
	scheduler *Scheduler
	appCtx    *core.AppContext
	logger    *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	if s := m.config.SessionPrune.MaxIdle; s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("cron: invalid session_prune.max_idle %q: %w", s, err)
		}
		m.maxIdle = d
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	m.scheduler = NewScheduler(m.logger)

	if err := m.registerJobs(); err != nil {
		return err
	}
	if err := m.scheduler.Start(); err != nil {
		return err
	}

	m.appCtx.RegisterService("status.cron", func() map[string]any {
		return map[string]any{"jobs": m.scheduler.Entries()}
	})
	return nil
}

func (m *Module) registerJobs() error {
	if !m.config.SessionPrune.Disabled {
		if store, ok := m.sessionStore(); ok {
			err := m.scheduler.RegisterJob(&SessionPruneJob{
				Store:        store,
				MaxIdle:      m.maxIdle,
				Logger:       m.logger,
				ScheduleExpr: m.config.SessionPrune.Schedule,
			})
			if err != nil {
				return err
			}
		} else {
			m.logger.Debug("cron: no router service, session prune skipped")
		}
	}

	if !m.config.ProviderProbe.Disabled {
		if chain, ok := m.providerChain(); ok {
			err := m.scheduler.RegisterJob(&ProviderProbeJob{
				Chain:        chain,
				Logger:       m.logger,
				ScheduleExpr: m.config.ProviderProbe.Schedule,
			})
			if err != nil {
				return err
			}
		} else {
			m.logger.Debug("cron: no provider chain service, probe skipped")
		}
	}

	if !m.config.Maintenance.Disabled {
		for label, svc := range m.appCtx.ServicesPrefix("maintenance.") {
			target, ok := svc.(Maintainer)
			if !ok {
				m.logger.Warn("cron: maintenance service has unexpected type",
					"backend", label, "type", fmt.Sprintf("%T", svc))
				continue
			}
			err := m.scheduler.RegisterJob(&MaintenanceJob{
				Target:       target,
				Label:        label,
				Logger:       m.logger,
				ScheduleExpr: m.config.Maintenance.Schedule,
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Module) sessionStore() (SessionPruner, bool) {
	svc, ok := m.appCtx.GetService("router")
	if !ok {
		return nil, false
	}
	rt, ok := svc.(*router.Router)
	if !ok {
		return nil, false
	}
	return rt.Sessions(), true
}

func (m *Module) providerChain() (ChainProber, bool) {
	svc, ok := m.appCtx.GetService("provider.chain")
	if !ok {
		return nil, false
	}
	chain, ok := svc.(*provider.Chain)
	if !ok {
		return nil, false
	}
	return chain, true
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}
