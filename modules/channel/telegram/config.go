package telegram

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config holds the Telegram channel configuration.
type Config struct {
	Token            string   `yaml:"token"`
	Mode             string   `yaml:"mode"`
	PollingTimeout   int      `yaml:"polling_timeout"`
	DropPending      bool     `yaml:"drop_pending"`
	WebhookURL       string   `yaml:"webhook_url"`
	WebhookSecret    string   `yaml:"webhook_secret"`
	AllowedUpdates   []string `yaml:"allowed_updates"`
	AllowUsers       []string `yaml:"allow_users"`
	AllowGroups      []string `yaml:"allow_groups"`
	MaxMessageLength int      `yaml:"max_message_length"`

	// StreamFlushInterval is a duration string ("500ms", "2s") bounding
	// how often streaming edits are flushed.
	StreamFlushInterval string `yaml:"stream_flush_interval"`

	// ChatRate and GlobalRate cap outbound sends in messages per second,
	// per chat and across all chats. Telegram documents roughly 1/s per
	// chat and 30/s overall.
	ChatRate   float64 `yaml:"chat_rate"`
	GlobalRate float64 `yaml:"global_rate"`

	APIURL string `yaml:"api_url"`

	streamFlush time.Duration
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = "polling"
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "edited_message", "channel_post"}
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 4096
	}
	if c.StreamFlushInterval == "" {
		c.StreamFlushInterval = "1s"
	}
	if c.ChatRate == 0 {
		c.ChatRate = 1
	}
	if c.GlobalRate == 0 {
		c.GlobalRate = 30
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
}

// parse resolves the stream flush interval string into a duration.
func (c *Config) parse() error {
	d, err := time.ParseDuration(c.StreamFlushInterval)
	if err != nil {
		return fmt.Errorf("telegram: invalid stream_flush_interval %q: %w", c.StreamFlushInterval, err)
	}
	if d < 100*time.Millisecond || d > 30*time.Second {
		return fmt.Errorf("telegram: stream_flush_interval must be 100ms-30s, got %s", d)
	}
	c.streamFlush = d
	return nil
}

// validate checks configuration field constraints beyond basic presence
// checks. It runs after defaults have been applied.
func (c *Config) validate() error {
	if c.Token != "" && !tokenPattern.MatchString(c.Token) {
		return fmt.Errorf("telegram: token format invalid (expected <bot_id>:<hash>)")
	}

	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
		}
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		return fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout)
	}

	if c.MaxMessageLength < 1 || c.MaxMessageLength > 4096 {
		return fmt.Errorf("telegram: max_message_length must be 1-4096, got %d", c.MaxMessageLength)
	}

	if c.ChatRate < 0.1 || c.ChatRate > 30 {
		return fmt.Errorf("telegram: chat_rate must be 0.1-30, got %g", c.ChatRate)
	}

	if c.GlobalRate < 1 || c.GlobalRate > 100 {
		return fmt.Errorf("telegram: global_rate must be 1-100, got %g", c.GlobalRate)
	}

	return c.parse()
}
