// Package app provides the herald daemon entry point shared by the
// CLI start command and the system service wrapper.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/heraldbot/herald/internal/config"
	"github.com/heraldbot/herald/internal/console"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/reload"
	"github.com/heraldbot/herald/internal/security"
	"github.com/heraldbot/herald/internal/tool"
)

// logRingSize is how many recent log lines the console tail can serve.
const logRingSize = 500

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags. Empty means "dev".
	Version string

	// DataDir overrides the data directory from config and XDG.
	DataDir string

	// Workspace overrides the session working directory.
	Workspace string
}

// Run loads configuration, starts all modules, and blocks until a
// shutdown signal arrives. SIGHUP and config file changes trigger a
// live reload for modules that implement core.Reloader.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// The redactor learns every secret the config pulled from the
	// environment before the first log line is written.
	redactor := security.NewRedactor()
	for _, s := range cfg.Secrets() {
		redactor.AddLiteral(s)
	}

	// Log lines flow to stderr and into the ring the console tails.
	// The ring sits behind the redacting handler, so tailed lines are
	// scrubbed the same as the terminal's.
	ring := console.NewRing(logRingSize)
	inner := slog.NewTextHandler(io.MultiWriter(os.Stderr, ring), &slog.HandlerOptions{
		Level: cfg.Log.LogLevel(),
	})
	logger := slog.New(security.NewRedactingHandler(inner, redactor))

	version := params.Version
	if version == "" {
		version = "dev"
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	workspace := params.Workspace
	if workspace == "" {
		workspace = cfg.Workspace
	}
	if workspace == "" {
		workspace = DefaultWorkspace()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("creating workspace %s: %w", workspace, err)
	}

	appCtx := core.NewAppContext(logger, dataDir, workspace)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Shared services consumed by modules during Provision.
	appCtx.RegisterService("app.version", version)
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService("console.ring", ring)
	appCtx.RegisterService("tool.registry", tool.NewRegistry())
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.sanitized_env", security.SanitizedEnv(redactor.Literals()))

	rateLimiter := newRateLimiter(cfg)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// The router is assembled from whatever channels and providers the
	// config loaded, so it cannot be a registry module. It joins the
	// lifecycle between LoadModules and Start.
	if err := wireRouter(application, appCtx, cfg, ids, logger, rateLimiter); err != nil {
		return err
	}

	// Registered before Start so the gateway's admin endpoint finds it.
	handler := reload.NewHandler(application, logger, dataDir, workspace)
	appCtx.RegisterService("config.reload", func(ctx context.Context) error {
		return handler.HandleReload(ctx, cfgPath)
	})

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("herald running", "version", version, "config", cfgPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watcher := reload.NewWatcher(cfgPath, 0, logger)
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-watcher.Events():
			logger.Info("config file changed, reloading", "path", cfgPath)
			if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// newRateLimiter builds the shared limiter from the optional security
// section. Zero fields select the limiter's own defaults.
func newRateLimiter(cfg *config.Config) *security.RateLimiter {
	var rl config.RateLimitsConfig
	if cfg.Security != nil {
		rl = cfg.Security.RateLimits
	}
	return security.NewRateLimiter(security.RateLimitConfig{
		MaxSessions:    rl.MaxSessions,
		MessagesPerMin: rl.MessagesPerMin,
		TokensPerHour:  rl.TokensPerHour,
	})
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $HERALD_CONFIG → $XDG_CONFIG_HOME/herald/herald.yaml →
// ~/.config/herald/herald.yaml → ./herald.yaml. An explicit
// $HERALD_CONFIG is returned without a file check so a missing file
// fails later with a path in the error.
func ResolveConfigPath() (string, error) {
	if path := os.Getenv("HERALD_CONFIG"); path != "" {
		return path, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "herald", "herald.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "herald", "herald.yaml"))
	}
	candidates = append(candidates, "herald.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory:
// $XDG_DATA_HOME/herald if set, otherwise ~/.local/share/herald.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "herald")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "herald")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
