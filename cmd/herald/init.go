package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	// Telegram bot tokens are <bot_id>:<hash>, as issued by BotFather.
	botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	envNamePattern  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// initAnswers holds everything the init wizard collects.
type initAnswers struct {
	Token          string
	Transport      string
	WebhookURL     string
	WebhookSecret  string
	Provider       string
	BaseURL        string
	APIKeyEnv      string
	Heartbeat      bool
	HeartbeatEvery string
	Memory         string
	RedisURL       string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Transport:      "polling",
		Provider:       "provider.anthropic",
		Heartbeat:      true,
		HeartbeatEvery: "30m",
		Memory:         "sqlite",
	}
}

var configTmpl = template.Must(template.New("herald.yaml").Parse(`version: "1"

log:
  level: info

modules:
  channel.telegram:
    token: "{{.Token}}"
    mode: {{.Transport}}
{{- if eq .Transport "webhook"}}
    webhook_url: {{.WebhookURL}}
    webhook_secret: "{{.WebhookSecret}}"

  gateway:
    bind: 127.0.0.1:8080
{{- end}}

  {{.Provider}}:
{{- if .BaseURL}}
    base_url: {{.BaseURL}}
{{- end}}
    api_key_env: {{.APIKeyEnv}}
{{- if .Heartbeat}}

  heartbeat:
    interval: {{.HeartbeatEvery}}
{{- end}}
{{- if eq .Memory "sqlite"}}

  memory.sqlite: {}
{{- else if eq .Memory "redis"}}

  memory.redis:
    url: {{.RedisURL}}
{{- end}}
`))

// renderConfig writes the generated herald.yaml to w.
func renderConfig(w io.Writer, ans initAnswers) error {
	return configTmpl.Execute(w, ans)
}

// writeConfig creates path with owner-only permissions. An existing
// file is left alone unless force is set.
func writeConfig(path string, data []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// randomSecret returns a hex string suitable for a webhook secret.
func randomSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validateBotToken(s string) error {
	if !botTokenPattern.MatchString(s) {
		return errors.New("expected <bot_id>:<hash> as issued by BotFather")
	}
	return nil
}

func validateWebhookURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return errors.New("Telegram requires a public https URL")
	}
	return nil
}

func validateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func validateEnvName(s string) error {
	if !envNamePattern.MatchString(s) {
		return errors.New("use an environment variable name like ANTHROPIC_API_KEY")
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New(`use a duration like "30m" or "1h"`)
	}
	if d < time.Minute {
		return errors.New("the shortest supported interval is 1m")
	}
	return nil
}

func validateRedisURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "redis" && u.Scheme != "rediss") {
		return errors.New("use a redis:// or rediss:// URL")
	}
	return nil
}

func wizardForm(ans *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("Issued by BotFather. Stored in the config file, which is written owner-only.").
				EchoMode(huh.EchoModePassword).
				Validate(validateBotToken).
				Value(&ans.Token),
			huh.NewSelect[string]().
				Title("Update transport").
				Options(
					huh.NewOption("Long polling", "polling"),
					huh.NewOption("Webhook", "webhook"),
				).
				Value(&ans.Transport),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Webhook URL").
				Placeholder("https://bot.example.com/webhooks/telegram").
				Validate(validateWebhookURL).
				Value(&ans.WebhookURL),
			huh.NewInput().
				Title("Webhook secret").
				Description("Leave blank to generate one.").
				Value(&ans.WebhookSecret),
		).WithHideFunc(func() bool { return ans.Transport != "webhook" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Options(
					huh.NewOption("Anthropic", "provider.anthropic"),
					huh.NewOption("OpenAI-compatible", "provider.openai_compatible"),
				).
				Value(&ans.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Placeholder("https://api.openai.com/v1").
				Validate(validateBaseURL).
				Value(&ans.BaseURL),
		).WithHideFunc(func() bool { return ans.Provider != "provider.openai_compatible" }),
		huh.NewGroup(
			huh.NewInput().
				Title("API key environment variable").
				Description("The key itself stays out of the config file.").
				Placeholder("ANTHROPIC_API_KEY").
				Validate(validateEnvName).
				Value(&ans.APIKeyEnv),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the heartbeat?").
				Description("Periodically pokes idle sessions so the agent can follow up on its own.").
				Value(&ans.Heartbeat),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Heartbeat interval").
				Validate(validateInterval).
				Value(&ans.HeartbeatEvery),
		).WithHideFunc(func() bool { return !ans.Heartbeat }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conversation history").
				Options(
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("Redis", "redis"),
					huh.NewOption("In-memory only", "none"),
				).
				Value(&ans.Memory),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis URL").
				Placeholder("redis://localhost:6379/0").
				Validate(validateRedisURL).
				Value(&ans.RedisURL),
		).WithHideFunc(func() bool { return ans.Memory != "redis" }),
	)
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			ans := defaultAnswers()
			if err := wizardForm(&ans).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return errors.New("aborted")
				}
				return err
			}

			if ans.Transport == "webhook" && ans.WebhookSecret == "" {
				secret, err := randomSecret()
				if err != nil {
					return err
				}
				ans.WebhookSecret = secret
			}

			var buf bytes.Buffer
			if err := renderConfig(&buf, ans); err != nil {
				return err
			}
			if err := writeConfig(output, buf.Bytes(), force); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", output)
			fmt.Printf("Set %s, then run: herald start --config %s\n", ans.APIKeyEnv, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "herald.yaml", "Output path for the generated configuration")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
