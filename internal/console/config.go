package console

import (
	"fmt"
	"time"
)

const (
	defaultMaxConnections = 4
	defaultPingInterval   = "30s"
	defaultTailLines      = 100
)

// Config holds the console module configuration.
type Config struct {
	// MaxConnections caps concurrent operator connections. Defaults to 4.
	MaxConnections int `yaml:"max_connections"`

	// PingInterval is a duration string ("30s", "1m") for the liveness
	// sweep; a connection silent for three intervals is closed.
	// Defaults to 30s.
	PingInterval string `yaml:"ping_interval"`

	// TailLines caps the number of log lines a tail request returns.
	// Defaults to 100.
	TailLines int `yaml:"tail_lines"`

	pingInterval time.Duration
}

func (c *Config) defaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.PingInterval == "" {
		c.PingInterval = defaultPingInterval
	}
	if c.TailLines == 0 {
		c.TailLines = defaultTailLines
	}
}

func (c *Config) parse() error {
	d, err := time.ParseDuration(c.PingInterval)
	if err != nil {
		return fmt.Errorf("console: invalid ping_interval %q: %w", c.PingInterval, err)
	}
	if d < 5*time.Second || d > 5*time.Minute {
		return fmt.Errorf("console: ping_interval must be 5s-5m, got %s", d)
	}
	c.pingInterval = d
	return nil
}

// validate checks configuration field constraints. It runs after
// defaults have been applied.
func (c *Config) validate() error {
	if c.MaxConnections < 1 || c.MaxConnections > 64 {
		return fmt.Errorf("console: max_connections must be 1-64, got %d", c.MaxConnections)
	}
	if c.TailLines < 1 || c.TailLines > 1000 {
		return fmt.Errorf("console: tail_lines must be 1-1000, got %d", c.TailLines)
	}
	return c.parse()
}
