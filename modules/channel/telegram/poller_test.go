package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/pkg/message"
)

// fakeKV is an in-memory key-value store for offset persistence tests.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Put(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func TestPollerReceivesUpdates(t *testing.T) {
	var callCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := callCount.Add(1)
		if n == 1 {
			writeJSON(t, w, APIResponse[[]Update]{
				OK: true,
				Result: []Update{
					{
						UpdateID: 1,
						Message: &Message{
							MessageID: 10,
							From:      &User{ID: 100, FirstName: "Alice", Username: "alice"},
							Chat:      Chat{ID: 200, Type: "private"},
							Text:      "hello",
							Date:      1700000000,
						},
					},
				},
			})
			return
		}
		// Second call: empty (give poller time to stop).
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		// Sleep to let stop signal propagate.
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	allowList := channel.NewAllowList([]string{"100"}, nil)

	var mu sync.Mutex
	var received []message.InboundMessage

	poller := NewPoller(client, func(msg message.InboundMessage) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	}, allowList, nil, discardLogger(), "test_bot", "telegram", Config{
		PollingTimeout: 0, // No long-polling timeout in tests.
		AllowedUpdates: []string{"message"},
	})

	poller.Start()
	// Wait for at least one update to be processed.
	time.Sleep(500 * time.Millisecond)
	poller.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d messages, want 1", len(received))
	}
	if received[0].Sender.ID != "100" {
		t.Errorf("Sender.ID = %q, want %q", received[0].Sender.ID, "100")
	}
}

func TestPollerDeniesUnallowedUsers(t *testing.T) {
	var callCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := callCount.Add(1)
		if n == 1 {
			writeJSON(t, w, APIResponse[[]Update]{
				OK: true,
				Result: []Update{
					{
						UpdateID: 1,
						Message: &Message{
							MessageID: 10,
							From:      &User{ID: 999, FirstName: "Eve"},
							Chat:      Chat{ID: 200, Type: "private"},
							Text:      "hack",
							Date:      1700000000,
						},
					},
				},
			})
			return
		}
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	allowList := channel.NewAllowList([]string{"100"}, nil) // Only user 100 is allowed.

	var mu sync.Mutex
	var received []message.InboundMessage

	poller := NewPoller(client, func(msg message.InboundMessage) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	}, allowList, nil, discardLogger(), "test_bot", "telegram", Config{
		PollingTimeout: 0,
		AllowedUpdates: []string{"message"},
	})

	poller.Start()
	time.Sleep(500 * time.Millisecond)
	poller.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 0 {
		t.Errorf("received %d messages, want 0 (denied)", len(received))
	}
}

func TestPollerCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		// Always return error.
		writeJSON(t, w, APIResponse[json.RawMessage]{
			OK:          false,
			ErrorCode:   500,
			Description: "Internal Server Error",
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	allowList := channel.NewAllowList([]string{"100"}, nil)

	poller := NewPoller(client, func(_ message.InboundMessage) error {
		return nil
	}, allowList, nil, discardLogger(), "test_bot", "telegram", Config{
		PollingTimeout: 0,
		AllowedUpdates: []string{"message"},
	})

	poller.Start()
	// Give it enough time to hit the circuit breaker (5 errors).
	time.Sleep(300 * time.Millisecond)
	poller.Stop()

	// Should have hit at least 5 errors to trigger the breaker.
	if got := calls.Load(); got < 5 {
		t.Errorf("calls = %d, want >= 5", got)
	}
}

func TestPollerPersistsOffset(t *testing.T) {
	var callCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := callCount.Add(1)
		if n == 1 {
			writeJSON(t, w, APIResponse[[]Update]{
				OK: true,
				Result: []Update{
					{
						UpdateID: 1,
						Message: &Message{
							MessageID: 10,
							From:      &User{ID: 100, FirstName: "Alice"},
							Chat:      Chat{ID: 200, Type: "private"},
							Text:      "hello",
							Date:      1700000000,
						},
					},
				},
			})
			return
		}
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	allowList := channel.NewAllowList([]string{"100"}, nil)
	kv := newFakeKV()

	poller := NewPoller(client, func(_ message.InboundMessage) error {
		return nil
	}, allowList, kv, discardLogger(), "test_bot", "telegram", Config{
		PollingTimeout: 0,
		AllowedUpdates: []string{"message"},
	})

	poller.Start()
	time.Sleep(500 * time.Millisecond)
	poller.Stop()

	v, ok, err := kv.Get(context.Background(), "telegram.update_offset")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatal("offset not persisted")
	}
	if v != "2" {
		t.Errorf("persisted offset = %q, want %q", v, "2")
	}
}

func TestPollerResumesFromOffset(t *testing.T) {
	var firstOffset atomic.Int64
	var seen atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req GetUpdatesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		if seen.CompareAndSwap(false, true) {
			firstOffset.Store(int64(req.Offset))
		}
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	allowList := channel.NewAllowList([]string{"100"}, nil)
	kv := newFakeKV()
	if err := kv.Put(context.Background(), "telegram.update_offset", "100"); err != nil {
		t.Fatalf("seed offset: %v", err)
	}

	poller := NewPoller(client, func(_ message.InboundMessage) error {
		return nil
	}, allowList, kv, discardLogger(), "test_bot", "telegram", Config{
		PollingTimeout: 0,
		AllowedUpdates: []string{"message"},
	})

	poller.Start()
	time.Sleep(300 * time.Millisecond)
	poller.Stop()

	if !seen.Load() {
		t.Fatal("no getUpdates call observed")
	}
	if got := firstOffset.Load(); got != 100 {
		t.Errorf("first getUpdates offset = %d, want 100", got)
	}
}
