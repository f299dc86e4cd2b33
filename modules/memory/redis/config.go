package redis

import (
	"errors"
	"fmt"
	"time"
)

const defaultKeyPrefix = "herald:"

// Config holds the Redis memory module configuration.
type Config struct {
	// URL is the connection string (redis://[user:pass@]host:port/db).
	URL string `yaml:"url"`

	// KeyPrefix namespaces every key. Defaults to "herald:".
	KeyPrefix string `yaml:"key_prefix"`

	// TTL expires idle session keys ("90m", "24h"). Empty or zero
	// keeps them forever. KV entries never expire regardless.
	TTL string `yaml:"ttl"`

	ttl time.Duration
}

func (c *Config) defaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
}

func (c *Config) parse() error {
	if c.URL == "" {
		return errors.New("redis: url is required")
	}
	if c.TTL == "" {
		return nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return fmt.Errorf("redis: invalid ttl %q: %w", c.TTL, err)
	}
	if d < 0 {
		return fmt.Errorf("redis: ttl must be non-negative, got %s", d)
	}
	c.ttl = d
	return nil
}
