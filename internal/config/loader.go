package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// secretNamePattern marks variable names whose values should be kept
// out of logs.
var secretNamePattern = regexp.MustCompile(`(?i)secret|token|password|key|credential`)

// minSecretLen filters out short values (ports, flags) that would
// otherwise shred unrelated log text when redacted.
const minSecretLen = 8

// Load reads a YAML configuration file, loads a sibling .env file when
// one exists, expands environment variables, and parses the result.
func Load(path string) (*Config, error) {
	// Secrets referenced as ${VAR} may live in a .env next to the config.
	// Already-set process variables win over .env values.
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, secrets, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.secrets = secrets

	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML
// bytes. Unresolved variables (no env value, no default) are collected
// into a joined error. Substituted values whose variable name matches
// secretNamePattern are returned deduplicated so the caller can seed
// the log redactor; inline defaults sit in the file in plain text and
// are not recorded.
func expandEnv(raw []byte) ([]byte, []string, error) {
	var errs []error
	var secrets []string
	seen := make(map[string]bool)

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			if secretNamePattern.MatchString(name) && len(value) >= minSecretLen && !seen[value] {
				seen[value] = true
				secrets = append(secrets, value)
			}
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, secrets, errors.Join(errs...)
}

// LogLevel converts the configured level name to a slog.Level.
// Unknown or empty names fall back to info.
func (c LogConfig) LogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
