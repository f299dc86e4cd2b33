package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/heraldbot/herald/internal/core"
)

// Validate checks the structural validity of a Config: the version
// field, the presence of at least one module, that every referenced
// module ID is registered, and that the optional top-level sections
// are well formed.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}

	if sec := cfg.Security; sec != nil {
		if sec.RateLimits.MaxSessions < 0 {
			errs = append(errs, errors.New("config: security.rate_limits.max_sessions must not be negative"))
		}
		if sec.RateLimits.MessagesPerMin < 0 {
			errs = append(errs, errors.New("config: security.rate_limits.messages_per_min must not be negative"))
		}
		if sec.RateLimits.TokensPerHour < 0 {
			errs = append(errs, errors.New("config: security.rate_limits.tokens_per_hour must not be negative"))
		}
		if sec.MaxMessageBytes < 0 {
			errs = append(errs, errors.New("config: security.max_message_bytes must not be negative"))
		}
	}

	if ag := cfg.Agent; ag != nil {
		if ag.Workers < 0 {
			errs = append(errs, errors.New("config: agent.workers must not be negative"))
		}
		if ag.MaxHistory < 0 {
			errs = append(errs, errors.New("config: agent.max_history must not be negative"))
		}
		if ag.MaxIterations < 0 {
			errs = append(errs, errors.New("config: agent.max_iterations must not be negative"))
		}
		if ag.TokenBudget < 0 {
			errs = append(errs, errors.New("config: agent.token_budget must not be negative"))
		}
		if ag.MaxIdle != "" {
			if d, err := time.ParseDuration(ag.MaxIdle); err != nil {
				errs = append(errs, fmt.Errorf("config: agent.max_idle %q is not a duration: %w", ag.MaxIdle, err))
			} else if d <= 0 {
				errs = append(errs, fmt.Errorf("config: agent.max_idle must be positive, got %s", d))
			}
		}
		switch ag.GroupPolicy.Mode {
		case "", "require_mention", "allow_all":
		default:
			errs = append(errs, fmt.Errorf("config: agent.group_policy.mode %q is not one of require_mention, allow_all", ag.GroupPolicy.Mode))
		}
	}

	return errors.Join(errs...)
}
