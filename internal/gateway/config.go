package gateway

import (
	"fmt"
	"time"
)

// Config holds HTTP gateway configuration. Durations are YAML strings
// ("10s", "1m") parsed with time.ParseDuration.
type Config struct {
	Bind            string     `yaml:"bind,omitempty"`
	Auth            AuthConfig `yaml:"auth,omitempty"`
	ReadTimeout     string     `yaml:"read_timeout,omitempty"`
	WriteTimeout    string     `yaml:"write_timeout,omitempty"`
	IdleTimeout     string     `yaml:"idle_timeout,omitempty"`
	ShutdownTimeout string     `yaml:"shutdown_timeout,omitempty"`

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// parse fills the duration fields and applies defaults. The bind
// address defaults to loopback so the gateway is never exposed by
// accident.
func (c *Config) parse() error {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}

	var err error
	if c.readTimeout, err = durationOr("read_timeout", c.ReadTimeout, 10*time.Second); err != nil {
		return err
	}
	if c.writeTimeout, err = durationOr("write_timeout", c.WriteTimeout, 30*time.Second); err != nil {
		return err
	}
	if c.idleTimeout, err = durationOr("idle_timeout", c.IdleTimeout, 60*time.Second); err != nil {
		return err
	}
	if c.shutdownTimeout, err = durationOr("shutdown_timeout", c.ShutdownTimeout, 5*time.Second); err != nil {
		return err
	}
	return nil
}

func durationOr(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("gateway: invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// AuthConfig configures authentication for the admin surface.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token,omitempty"`
	BasicUser   string `yaml:"basic_user,omitempty"`
	BasicPass   string `yaml:"basic_pass,omitempty"`
}

// IsConfigured reports whether any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
