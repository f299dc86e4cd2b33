package core

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext carries shared resources available to modules during
// provisioning and at runtime. Copies made by ForModule and
// WithModuleConfigs share the same service registry.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent module data.
	DataDir string

	// Workspace is the working directory for sessions.
	Workspace string

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

// serviceRegistry is the shared cross-module discovery map.
type serviceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewAppContext creates an AppContext rooted at the given logger and
// directories.
func NewAppContext(logger *slog.Logger, dataDir, workspace string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		Workspace:    workspace,
		parentLogger: logger,
		services:     &serviceRegistry{services: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of the context with per-module raw
// YAML configuration attached, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a context scoped to one module, with a child logger
// carrying the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.parentLogger.With("module", string(id))
	return &cp
}

// RegisterService publishes a value under a well-known key so other
// modules can discover it (e.g. "gateway.webhooks", "provider.chain").
// Later registrations overwrite earlier ones.
func (ctx *AppContext) RegisterService(key string, value any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.services[key] = value
}

// GetService looks up a published service by key.
func (ctx *AppContext) GetService(key string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	v, ok := ctx.services.services[key]
	return v, ok
}

// ServicesPrefix returns all services whose key starts with prefix,
// keyed by the remainder of the key. The status endpoint uses it to
// collect "status."-prefixed report funcs from loaded modules.
func (ctx *AppContext) ServicesPrefix(prefix string) map[string]any {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()

	out := make(map[string]any)
	for key, v := range ctx.services.services {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// LoadModule instantiates and prepares the module with the given ID.
// Lifecycle order: New() → Configure() → Provision() → Validate().
// Each step runs only when the module implements the matching interface.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, exists := ctx.moduleConfigs[id]; exists {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}

	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}

	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}

	return mod, nil
}
