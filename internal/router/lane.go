package router

import "sync"

// LaneLock serializes processing within a session while letting
// different sessions run in parallel.
//
// A global mutex guards the lane map; each lane carries its own mutex
// for intra-session serialization. The global mutex is held only to
// look up or create the per-session lane.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[SessionKey]*lane
}

// lane holds per-session synchronization state. refs counts goroutines
// holding or waiting on the lane; stale marks lanes for removal once
// refs drops to zero.
type lane struct {
	mu    sync.Mutex
	refs  int
	stale bool
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[SessionKey]*lane),
	}
}

// Acquire locks the per-session lane, creating it on first use. The
// caller must Release with the same key.
func (l *LaneLock) Acquire(key SessionKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	ln.stale = false
	l.mu.Unlock()

	// Lock outside the global mutex so other sessions are not blocked.
	ln.mu.Lock()
}

// Release unlocks the per-session lane previously acquired for key.
func (l *LaneLock) Release(key SessionKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 && ln.stale {
		delete(l.lanes, key)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Cleanup drops lane entries whose sessions are gone. activeKeys holds
// the keys of currently live sessions; lanes still held by a goroutine
// are only marked and removed on their final Release.
func (l *LaneLock) Cleanup(activeKeys map[SessionKey]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, ln := range l.lanes {
		if _, active := activeKeys[key]; !active {
			ln.stale = true
			if ln.refs == 0 {
				delete(l.lanes, key)
			}
			continue
		}
		ln.stale = false
	}
}
