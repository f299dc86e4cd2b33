// Package reload implements live configuration reload: a polling file
// watcher and a handler that revalidates the config and pushes fresh
// sections to reloadable modules.
package reload

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Watcher signals when the config file's modification time advances.
// Changes are detected by polling; a pending unread signal absorbs
// further changes, so rapid successive edits collapse into one reload.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	events  chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for the config file at path. A
// non-positive interval selects the default of 5s.
func NewWatcher(path string, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		interval: interval,
		logger:   logger,
		events:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the change signal channel.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Stop halts polling and waits for the poll goroutine to exit. Safe to
// call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	lastMod := w.modTime()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.modTime()
			if current.IsZero() || !current.After(lastMod) {
				continue
			}
			lastMod = current
			w.logger.Debug("config file changed", "path", w.path)
			select {
			case w.events <- struct{}{}:
			default:
				// A reload is already pending.
			}
		}
	}
}

// modTime returns the file's mtime, or the zero time when the file is
// missing or unreadable.
func (w *Watcher) modTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
