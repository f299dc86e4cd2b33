package anthropic

import (
	"fmt"
	"os"
	"time"

	"github.com/heraldbot/herald/internal/provider"
)

// defaultModel is the model used when none is specified.
// Pinned to a dated release for reproducibility; update when a newer
// stable version is validated.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultContextWindow covers all Claude 3.x and 4.x models (200k tokens).
// If Anthropic introduces a model family with a different window, add an
// explicit lookup table at that point.
const defaultContextWindow = 200_000

const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey        string `yaml:"api_key"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	MaxTokens     int    `yaml:"max_tokens"`
	ContextWindow int    `yaml:"context_window"`

	// Name identifies this entry in the provider chain.
	Name string `yaml:"name"`

	// Role is the chain role: primary, fallback, or utility.
	Role string `yaml:"role"`

	// FallbackFor limits a fallback entry to the listed roles.
	// Empty means it covers every role.
	FallbackFor []string `yaml:"fallback_for"`

	// Timeout bounds each request ("30s", "2m"). Streaming responses
	// are not cut off once the first byte arrives.
	Timeout string `yaml:"timeout"`

	timeout time.Duration
	role    provider.Role
}

// defaults fills in zero-value fields.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Name == "" {
		c.Name = "anthropic"
	}
}

func (c *Config) parse() error {
	role, err := provider.ParseRole(c.Role)
	if err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	c.role = role
	for _, r := range c.FallbackFor {
		if _, err := provider.ParseRole(r); err != nil {
			return fmt.Errorf("provider.anthropic: fallback_for: %w", err)
		}
	}

	c.timeout = defaultTimeout
	if c.Timeout == "" {
		return nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("provider.anthropic: invalid timeout %q: %w", c.Timeout, err)
	}
	if d > 0 {
		c.timeout = d
	}
	return nil
}

// resolveAPIKey returns the key to use: inline config wins, then the
// configured env var, then the SDK's conventional ANTHROPIC_API_KEY.
func (c *Config) resolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		if key := os.Getenv(c.APIKeyEnv); key != "" {
			return key
		}
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// contextWindowForModel returns the context window for the configured
// model, honoring an explicit override.
func (c *Config) contextWindowForModel() int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	return defaultContextWindow
}
