// Package security holds the cross-cutting guards: secret redaction for
// logs and status output, sliding-window rate limits, inbound payload
// checks, and environment scrubbing for spawned tool servers.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|api_key|credential)`)

// Redactor replaces secret values in strings and maps with a placeholder.
// It matches both regex patterns (known API key shapes) and literal values
// registered at runtime (bot tokens, webhook secrets from config).
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with patterns for the key
// formats herald handles: Telegram bot tokens, Anthropic and OpenAI API
// keys, GitHub tokens, AWS access key IDs, and Bearer header values.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a literal secret value that is redacted on sight.
// Modules call this during provisioning with the secrets they read from
// config. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Literals returns a copy of the registered literal secrets. Used when
// building sanitized environments for spawned processes.
func (r *Redactor) Literals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.literals))
	copy(out, r.literals)
	return out
}

// Redact replaces all known secret patterns and literal values in s
// with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}

	return s
}

// RedactMap walks a map and replaces values whose keys look secret-bearing
// (secret, token, password, key, api_key, credential). Used by the status
// endpoint before it renders module configuration.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
			// Nested values under secret-named keys still get walked.
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// DefaultPatterns returns compiled regex patterns for the secret formats
// herald is likely to see in logs.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Telegram bot token: numeric bot ID, colon, 35-char secret.
		regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),
		// Anthropic: sk-ant-... (listed before the generic sk- form).
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		// OpenAI and compatible gateways: sk-...
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		// GitHub: ghp_, gho_, ghs_, github_pat_
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// AWS Access Key ID
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// Bearer header values
		regexp.MustCompile(`(?i)\bbearer\s+[a-zA-Z0-9\-._~+/]{16,}=*`),
	}
}
