package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// chatBurst lets a short run of messages through before per-chat
	// pacing kicks in.
	chatBurst = 3

	// Idle per-chat limiters are dropped once the map grows past
	// sweepThreshold and they have been unused for limiterIdleAge.
	limiterIdleAge = time.Hour
	sweepThreshold = 512
)

// throttle paces outbound API calls to stay inside Telegram's published
// limits: about one message per second per chat and thirty per second
// across all chats. A nil throttle performs no pacing.
type throttle struct {
	global  *rate.Limiter
	perChat rate.Limit

	mu    sync.Mutex
	chats map[int64]*chatLimiter
}

type chatLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newThrottle builds a throttle from per-chat and global rates in
// messages per second.
func newThrottle(chatRate, globalRate float64) *throttle {
	burst := int(globalRate)
	if burst < 1 {
		burst = 1
	}
	return &throttle{
		global:  rate.NewLimiter(rate.Limit(globalRate), burst),
		perChat: rate.Limit(chatRate),
		chats:   make(map[int64]*chatLimiter),
	}
}

// wait blocks until both the global limiter and the chat's limiter
// admit one send, or ctx is cancelled.
func (th *throttle) wait(ctx context.Context, chatID int64) error {
	if th == nil {
		return nil
	}
	if err := th.global.Wait(ctx); err != nil {
		return err
	}
	return th.chat(chatID).Wait(ctx)
}

// chat returns the limiter for chatID, creating it on first use.
func (th *throttle) chat(chatID int64) *rate.Limiter {
	th.mu.Lock()
	defer th.mu.Unlock()

	now := time.Now()
	cl, ok := th.chats[chatID]
	if !ok {
		if len(th.chats) >= sweepThreshold {
			th.sweep(now)
		}
		cl = &chatLimiter{lim: rate.NewLimiter(th.perChat, chatBurst)}
		th.chats[chatID] = cl
	}
	cl.lastSeen = now
	return cl.lim
}

// sweep drops limiters for chats idle longer than limiterIdleAge.
// Callers must hold mu.
func (th *throttle) sweep(now time.Time) {
	for id, cl := range th.chats {
		if now.Sub(cl.lastSeen) > limiterIdleAge {
			delete(th.chats, id)
		}
	}
}
