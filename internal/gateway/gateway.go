// Package gateway runs herald's HTTP surface: health and status
// probes, Prometheus metrics, webhook ingestion for push-mode
// channels, and the authenticated admin API. Other modules reach it
// through the "gateway.webhooks" service rather than importing it,
// so the gateway stays optional.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/router"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP server module.
type Gateway struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger

	dispatcher *WebhookDispatcher
	server     *http.Server

	// Resolved from the service registry at start. All optional: the
	// gateway serves what it can discover.
	sessions   router.SessionStore
	chain      *provider.Chain
	console    http.Handler
	reload     func(context.Context) error
	version    string
	configPath string

	startedAt time.Time
	addr      string
}

// Addr returns the bound listen address once the gateway has started.
// With a ":0" bind this is the only way to learn the real port.
func (g *Gateway) Addr() string {
	return g.addr
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The webhook dispatcher is
// published here, before any channel module starts, so push-mode
// channels can register their sources during their own provisioning.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger

	if err := g.config.parse(); err != nil {
		return err
	}

	g.dispatcher = NewWebhookDispatcher(g.logger)
	ctx.RegisterService("gateway.webhooks", g.dispatcher)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	return nil
}

// Start implements core.Starter. It resolves the optional
// collaborators published by the app and other modules, then begins
// serving.
func (g *Gateway) Start() error {
	g.resolveServices()

	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no admin auth configured, /status and /admin will reject all requests")
	}

	ln, err := net.Listen("tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	g.startedAt = time.Now()
	g.addr = ln.Addr().String()
	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.readTimeout,
		WriteTimeout: g.config.writeTimeout,
		IdleTimeout:  g.config.idleTimeout,
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: server stopped unexpectedly", "error", err)
		}
	}()

	g.logger.Info("gateway listening",
		"addr", g.addr,
		"auth", g.config.Auth.IsConfigured(),
		"webhooks", g.dispatcher.Sources())
	return nil
}

func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.GetService("router"); ok {
		if rt, ok := svc.(*router.Router); ok {
			g.sessions = rt.Sessions()
		}
	}
	if svc, ok := g.appCtx.GetService("provider.chain"); ok {
		if chain, ok := svc.(*provider.Chain); ok {
			g.chain = chain
		}
	}
	if svc, ok := g.appCtx.GetService("console.handler"); ok {
		if h, ok := svc.(http.Handler); ok {
			g.console = h
		}
	}
	if svc, ok := g.appCtx.GetService("config.reload"); ok {
		if fn, ok := svc.(func(context.Context) error); ok {
			g.reload = fn
		}
	}

	g.version = "dev"
	if svc, ok := g.appCtx.GetService("app.version"); ok {
		if v, ok := svc.(string); ok && v != "" {
			g.version = v
		}
	}
	if svc, ok := g.appCtx.GetService("config.path"); ok {
		if p, ok := svc.(string); ok {
			g.configPath = p
		}
	}
}

// Stop implements core.Stopper. In-flight requests get the configured
// shutdown grace before the listener closes hard.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, g.config.shutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(sctx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}
