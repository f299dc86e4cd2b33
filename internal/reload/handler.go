package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heraldbot/herald/internal/config"
	"github.com/heraldbot/herald/internal/core"
)

// Handler applies configuration reloads: it loads and validates a
// fresh config from disk, then hands each loaded Reloader module its
// new section. SIGHUP, the file watcher, and the gateway's admin
// endpoint all funnel through it.
type Handler struct {
	app       *core.App
	logger    *slog.Logger
	dataDir   string
	workspace string
}

// NewHandler creates a reload handler bound to a running app.
func NewHandler(app *core.App, logger *slog.Logger, dataDir, workspace string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		app:       app,
		logger:    logger,
		dataDir:   dataDir,
		workspace: workspace,
	}
}

// HandleReload loads the config at path, validates it, and reloads
// every module that supports it. An invalid file leaves the running
// configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload cancelled: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	appCtx := core.NewAppContext(h.logger, h.dataDir, h.workspace).
		WithModuleConfigs(cfg.Modules)

	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.logger.Info("configuration reloaded", "path", configPath)
	return nil
}
