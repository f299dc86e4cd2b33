package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns the lifecycle of a loaded module set: load in config order,
// start in load order, stop in reverse.
type App struct {
	ctx    *AppContext
	loaded []loadedModule
	logger *slog.Logger
}

type loadedModule struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App bound to the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads the modules with the given IDs in order. On failure
// the already-loaded modules are stopped and the error is returned.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.unload()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.loaded = append(a.loaded, loadedModule{
			id:     mod.ModuleInfo().ID,
			module: mod,
		})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds an already-constructed module to the lifecycle after
// LoadModules, used for runtime-built modules such as the router.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.loaded = append(a.loaded, loadedModule{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for i := range a.loaded {
		if string(a.loaded[i].id) == id {
			return a.loaded[i].module, true
		}
	}
	return nil, false
}

// Start starts every loaded module that implements Starter, in load
// order. If one fails, the previously started modules are stopped in
// reverse order before the error is returned.
func (a *App) Start() error {
	for i := range a.loaded {
		lm := &a.loaded[i]
		s, ok := lm.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(lm.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(lm.id), "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting module %s: %w", lm.id, err)
		}
		lm.started = true
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops all started modules in reverse order, bounded by the
// shutdown timeout.
func (a *App) Stop() {
	a.stopFrom(len(a.loaded) - 1)
}

func (a *App) stopFrom(idx int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := idx; i >= 0; i-- {
		lm := &a.loaded[i]
		if !lm.started {
			continue
		}
		if s, ok := lm.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(lm.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop error", "module", string(lm.id), "error", err)
			}
		}
		lm.started = false
	}
}

// unload stops whatever was loaded so far after a load failure. Modules
// have not been started yet, but some hold resources opened during
// Provision.
func (a *App) unload() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.loaded) - 1; i >= 0; i-- {
		if s, ok := a.loaded[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.loaded = nil
}

// ReloadModules passes each loaded Reloader its fresh config section
// from the given context, continuing past failures and returning them
// joined. Modules without a section in the new config keep their
// current settings; hot-unload is not supported.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for i := range a.loaded {
		lm := &a.loaded[i]
		r, ok := lm.module.(Reloader)
		if !ok {
			continue
		}
		node, ok := ctx.moduleConfigs[string(lm.id)]
		if !ok {
			a.logger.Warn("module missing from new config, keeping current settings",
				"module", string(lm.id))
			continue
		}
		a.logger.Info("reloading module", "module", string(lm.id))
		if err := r.Reload(&node); err != nil {
			a.logger.Error("module reload failed", "module", string(lm.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", lm.id, err))
		}
	}
	return errors.Join(errs...)
}
