package mcp

import (
	"fmt"
	"regexp"
	"time"
)

const defaultStartupTimeout = "30s"

// serverNamePattern restricts server names to characters that survive
// in a provider-facing tool name.
var serverNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds the MCP tool module configuration.
type Config struct {
	// Servers maps a server name to the command that runs it. The name
	// becomes the prefix of every tool the server exports.
	Servers map[string]ServerConfig `yaml:"servers"`

	// StartupTimeout is a duration string ("30s", "1m") bounding the
	// initialize and tool-listing handshake per server. Defaults to 30s.
	StartupTimeout string `yaml:"startup_timeout"`

	startupTimeout time.Duration
}

// ServerConfig describes one MCP server process.
type ServerConfig struct {
	// Command is the executable that speaks MCP on stdio.
	Command string `yaml:"command"`

	// Args are passed to the command.
	Args []string `yaml:"args"`

	// Env entries are appended to the sanitized child environment and
	// win over it on duplicate keys.
	Env map[string]string `yaml:"env"`

	// Allow restricts registration to the named tools, matched against
	// the server's own tool names. Empty means every tool.
	Allow []string `yaml:"allow"`
}

func (c *Config) defaults() {
	if c.StartupTimeout == "" {
		c.StartupTimeout = defaultStartupTimeout
	}
}

func (c *Config) parse() error {
	d, err := time.ParseDuration(c.StartupTimeout)
	if err != nil {
		return fmt.Errorf("mcp: invalid startup_timeout %q: %w", c.StartupTimeout, err)
	}
	if d < time.Second || d > 5*time.Minute {
		return fmt.Errorf("mcp: startup_timeout must be 1s-5m, got %s", d)
	}
	c.startupTimeout = d
	return nil
}

// validate checks configuration field constraints. It runs after
// defaults have been applied.
func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("mcp: no servers configured")
	}

	for name, server := range c.Servers {
		if !serverNamePattern.MatchString(name) {
			return fmt.Errorf("mcp: server name %q must match %s", name, serverNamePattern)
		}
		if server.Command == "" {
			return fmt.Errorf("mcp: server %s has no command", name)
		}
	}

	return c.parse()
}
