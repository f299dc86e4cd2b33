// Package config loads herald's YAML configuration: dotenv loading,
// environment variable expansion, structural validation, and module
// load-order resolution.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process-wide logger.
	Log LogConfig `yaml:"log,omitempty"`

	// DataDir overrides the persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Workspace overrides the session working directory.
	Workspace string `yaml:"workspace,omitempty"`

	// Security holds process-wide limits.
	Security *SecurityConfig `yaml:"security,omitempty"`

	// Agent tunes the message router and the reasoning loop.
	Agent *AgentConfig `yaml:"agent,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`

	// secrets holds the values substituted from environment variables
	// during Load whose names look secret-bearing. The app feeds them
	// to the log redactor before any module sees the config.
	secrets []string
}

// Secrets returns the secret values recorded during Load.
func (c *Config) Secrets() []string {
	return c.secrets
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level,omitempty"`
}

// SecurityConfig holds process-wide security limits.
type SecurityConfig struct {
	RateLimits RateLimitsConfig `yaml:"rate_limits,omitempty"`

	// MaxMessageBytes caps the raw size of an inbound message.
	// Zero means the built-in default.
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`
}

// RateLimitsConfig bounds message and session volume.
type RateLimitsConfig struct {
	MaxSessions    int `yaml:"max_sessions,omitempty"`
	MessagesPerMin int `yaml:"messages_per_min,omitempty"`
	TokensPerHour  int `yaml:"tokens_per_hour,omitempty"`
}

// AgentConfig tunes the router and the reasoning loop. Every field is
// optional; zero values select the built-in defaults.
type AgentConfig struct {
	// SystemPrompt is prepended to every model request.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// StreamReplies delivers replies incrementally through channels
	// that support editing.
	StreamReplies bool `yaml:"stream_replies,omitempty"`

	// Workers is the router worker pool size.
	Workers int `yaml:"workers,omitempty"`

	// MaxIdle is how long a session may sit untouched before pruning,
	// as a Go duration string ("45m", "2h").
	MaxIdle string `yaml:"max_idle,omitempty"`

	// MaxHistory caps the in-memory history window per session.
	MaxHistory int `yaml:"max_history,omitempty"`

	// MaxIterations caps the reason-act cycles per turn.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// TokenBudget caps cumulative tokens per turn. Zero is unlimited.
	TokenBudget int `yaml:"token_budget,omitempty"`

	// PokeAck overrides the token that suppresses a heartbeat poke's
	// reply. Must match what the heartbeat prompt asks the model for.
	PokeAck string `yaml:"poke_ack,omitempty"`

	// GroupPolicy controls which group messages get processed.
	GroupPolicy GroupPolicyConfig `yaml:"group_policy,omitempty"`
}

// GroupPolicyConfig mirrors router.GroupPolicy in YAML form.
type GroupPolicyConfig struct {
	// Mode is require_mention (default) or allow_all.
	Mode string `yaml:"mode,omitempty"`

	// Allow lists sender IDs that bypass the mention requirement.
	Allow []string `yaml:"allow,omitempty"`

	// Deny lists sender IDs whose group messages are always dropped.
	Deny []string `yaml:"deny,omitempty"`
}
