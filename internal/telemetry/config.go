package telemetry

import (
	"errors"
	"fmt"
)

// Config controls the OTLP trace exporter.
type Config struct {
	// Endpoint is the OTLP/HTTP collector, either host:port or a full
	// URL. The module only loads when a telemetry block is present in
	// the config, so an empty endpoint is a mistake, not "off".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for host:port endpoints. Ignored when
	// Endpoint is a full URL; the scheme decides there.
	Insecure bool `yaml:"insecure"`

	// Headers are added to every export request, e.g. collector auth.
	Headers map[string]string `yaml:"headers"`

	// SampleRatio is the fraction of traces kept, between 0 and 1.
	// Zero means unset and samples everything.
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) defaults() {
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return errors.New("telemetry: endpoint is required")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be between 0 and 1, got %g", c.SampleRatio)
	}
	return nil
}
