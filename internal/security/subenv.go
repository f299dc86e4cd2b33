package security

import (
	"os"
	"strings"
)

// sensitiveEnvPrefixes are stripped from subprocess environments so a
// spawned tool server never inherits herald's own credentials. Prefix
// entries cover every variable starting with them; exact-only names live
// in sensitiveEnvExact.
var sensitiveEnvPrefixes = []string{
	"HERALD_",
	"TELEGRAM_",
	"ANTHROPIC_",
	"OPENAI_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"REDIS_PASSWORD",
}

// sensitiveEnvExact are stripped only on exact match. DATABASE_URL and
// DB_PASSWORD stay exact so DB_PORT or DATABASE_HOST survive.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
}

// SanitizedEnv returns a copy of os.Environ() with sensitive variables
// removed and any of the given secret values scrubbed from the remaining
// entries. Tool server launchers pass the redactor's literals as secrets.
func SanitizedEnv(secrets []string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env))

	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}

		if isSensitiveEnvVar(key) {
			continue
		}

		// Short values ("yes", "1") would over-match, so only secrets of
		// eight or more characters are scrubbed from surviving entries.
		sanitized := entry
		for _, secret := range secrets {
			if len(secret) >= 8 && strings.Contains(sanitized, secret) {
				sanitized = strings.ReplaceAll(sanitized, secret, RedactPlaceholder)
			}
		}

		result = append(result, sanitized)
	}

	return result
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)

	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}

	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}

	return false
}
