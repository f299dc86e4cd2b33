package openaicompat

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/heraldbot/herald/internal/provider"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultContextWindow = 4096
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIKeys       []string          `yaml:"api_keys"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	Model         string            `yaml:"model"`
	MaxTokens     int               `yaml:"max_tokens"`
	Headers       map[string]string `yaml:"headers"`

	// ContextWindow overrides the built-in per-model lookup.
	// Unknown models default to 4096.
	ContextWindow int `yaml:"context_window"`

	// Name identifies this entry in the provider chain.
	Name string `yaml:"name"`

	// Role is the chain role: primary, fallback, or utility.
	Role string `yaml:"role"`

	// FallbackFor limits a fallback entry to the listed roles.
	FallbackFor []string `yaml:"fallback_for"`

	// Timeout bounds the wait for response headers ("30s", "2m").
	// A body in flight is never cut off, so SSE streams run as long
	// as the server keeps sending.
	Timeout string `yaml:"timeout"`

	timeout time.Duration
	role    provider.Role
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.ContextWindow == 0 {
		c.ContextWindow = lookupContextWindow(c.Model)
	}
	if c.Name == "" {
		c.Name = "openai_compatible"
	}
	if c.BaseURL != "" {
		c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
}

// parse resolves string config fields into their runtime form.
func (c *Config) parse() error {
	role, err := provider.ParseRole(c.Role)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: %w", err)
	}
	c.role = role
	for _, r := range c.FallbackFor {
		if _, err := provider.ParseRole(r); err != nil {
			return fmt.Errorf("provider.openai_compatible: fallback_for: %w", err)
		}
	}

	c.timeout = defaultTimeout
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("provider.openai_compatible: invalid timeout %q: %w", c.Timeout, err)
		}
		if d > 0 {
			c.timeout = d
		}
	}
	return nil
}

// resolveKeys returns the API keys in rotation order: the explicit
// list first, then the single api_key, then the env var.
func (c *Config) resolveKeys() []string {
	if len(c.APIKeys) > 0 {
		return c.APIKeys
	}
	if c.APIKey != "" {
		return []string{c.APIKey}
	}
	if c.APIKeyEnv != "" {
		if key := os.Getenv(c.APIKeyEnv); key != "" {
			return []string{key}
		}
	}
	return nil
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errMissingField("base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.openai_compatible: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if len(c.APIKeys) == 0 && c.APIKey == "" && c.APIKeyEnv == "" {
		return fmt.Errorf("provider.openai_compatible: one of api_key, api_keys, or api_key_env is required")
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("provider.openai_compatible: context_window must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai_compatible: max_tokens must not be negative")
	}
	return nil
}
