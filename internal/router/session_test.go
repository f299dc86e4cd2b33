package router

import (
	"testing"

	"github.com/heraldbot/herald/pkg/message"
)

func TestSessionKeyFromMessage(t *testing.T) {
	t.Parallel()

	msg := message.InboundMessage{
		Channel:  "telegram",
		Chat:     message.Chat{ID: "-1001"},
		ThreadID: "42",
	}

	key := SessionKeyFromMessage(msg)

	if key.Channel != "telegram" {
		t.Errorf("Channel = %q, want %q", key.Channel, "telegram")
	}
	if key.ChatID != "-1001" {
		t.Errorf("ChatID = %q, want %q", key.ChatID, "-1001")
	}
	if key.ThreadID != "42" {
		t.Errorf("ThreadID = %q, want %q", key.ThreadID, "42")
	}
}

func TestSessionKeyFromMessage_EmptyThread(t *testing.T) {
	t.Parallel()

	msg := message.InboundMessage{
		Channel: "telegram",
		Chat:    message.Chat{ID: "100"},
		// ThreadID intentionally left empty.
	}

	key := SessionKeyFromMessage(msg)

	if key.Channel != "telegram" {
		t.Errorf("Channel = %q, want %q", key.Channel, "telegram")
	}
	if key.ChatID != "100" {
		t.Errorf("ChatID = %q, want %q", key.ChatID, "100")
	}
	if key.ThreadID != "" {
		t.Errorf("ThreadID = %q, want empty string", key.ThreadID)
	}
}

func TestSessionKeyEquality(t *testing.T) {
	t.Parallel()

	k1 := SessionKey{Channel: "telegram", ChatID: "100", ThreadID: "1"}
	k2 := SessionKey{Channel: "telegram", ChatID: "100", ThreadID: "1"}
	k3 := SessionKey{Channel: "telegram", ChatID: "100", ThreadID: "2"}

	if k1 != k2 {
		t.Error("identical keys should be equal")
	}
	if k1 == k3 {
		t.Error("keys with different ThreadID should not be equal")
	}
}

func TestSessionKeyString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  SessionKey
		want string
	}{
		{
			name: "chat only",
			key:  SessionKey{Channel: "telegram", ChatID: "100"},
			want: "telegram/100",
		},
		{
			name: "with thread",
			key:  SessionKey{Channel: "telegram", ChatID: "-1001", ThreadID: "42"},
			want: "telegram/-1001/42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSessionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want SessionKey
		ok   bool
	}{
		{
			name: "chat only",
			in:   "telegram/100",
			want: SessionKey{Channel: "telegram", ChatID: "100"},
			ok:   true,
		},
		{
			name: "with thread",
			in:   "telegram/-1001/42",
			want: SessionKey{Channel: "telegram", ChatID: "-1001", ThreadID: "42"},
			ok:   true,
		},
		{
			name: "single segment",
			in:   "telegram",
			ok:   false,
		},
		{
			name: "too many segments",
			in:   "a/b/c/d",
			ok:   false,
		},
		{
			name: "empty segment",
			in:   "telegram//42",
			ok:   false,
		},
		{
			name: "empty string",
			in:   "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseSessionKey(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseSessionKey(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseSessionKey(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionKeyRoundTrip(t *testing.T) {
	t.Parallel()

	orig := SessionKey{Channel: "telegram", ChatID: "-1001", ThreadID: "42"}
	parsed, ok := ParseSessionKey(orig.String())
	if !ok || parsed != orig {
		t.Errorf("round trip = %v, %v; want %v", parsed, ok, orig)
	}
}
