// Package anthropic implements the provider.anthropic module, bridging
// herald to the Anthropic Messages API for completions and streaming.
package anthropic

import (
	"errors"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/provider"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module            = (*Anthropic)(nil)
	_ core.Configurable      = (*Anthropic)(nil)
	_ core.Provisioner       = (*Anthropic)(nil)
	_ core.Validator         = (*Anthropic)(nil)
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
	_ provider.ChainMember   = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module. It implements
// provider.Provider and provider.HealthChecker on the Messages API.
type Anthropic struct {
	config        Config
	client        *sdkanthropic.Client
	logger        *slog.Logger
	contextWindow int
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.logger = ctx.Logger

	if err := a.config.parse(); err != nil {
		return err
	}

	apiKey := a.config.resolveAPIKey()

	opts := []option.RequestOption{
		// The provider chain owns retries; SDK-level retries would
		// multiply them.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(a.config.timeout),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}

	client := sdkanthropic.NewClient(opts...)
	a.client = &client

	a.contextWindow = a.config.contextWindowForModel()
	if a.config.ContextWindow == 0 {
		a.logger.Debug("using default context window",
			"model", a.config.Model,
			"context_window", a.contextWindow,
		)
	}
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if a.config.Model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if a.client == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	return nil
}

// ChainEntry implements provider.ChainMember.
func (a *Anthropic) ChainEntry() provider.ChainEntry {
	roles := make([]provider.Role, 0, len(a.config.FallbackFor))
	for _, r := range a.config.FallbackFor {
		role, _ := provider.ParseRole(r)
		roles = append(roles, role)
	}
	return provider.ChainEntry{
		Name:        a.config.Name,
		Provider:    a,
		Role:        a.config.role,
		FallbackFor: roles,
	}
}

// ContextWindowSize implements provider.Provider.
func (a *Anthropic) ContextWindowSize() int {
	return a.contextWindow
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}
