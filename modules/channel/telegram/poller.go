package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/memory"
	"github.com/heraldbot/herald/pkg/message"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second

	// offsetKey is the key-value store entry holding the last
	// acknowledged update offset.
	offsetKey = "telegram.update_offset"
)

// Poller implements long polling for receiving Telegram updates. When a
// key-value store is available it persists the update offset there, so
// a restart resumes where the previous run stopped instead of replaying
// the backlog.
type Poller struct {
	client      *Client
	inbox       func(message.InboundMessage) error
	allowList   *channel.AllowList
	kv          memory.KVStore
	logger      *slog.Logger
	botUsername string
	channelName string
	config      Config

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a new Poller. kv may be nil, in which case the
// offset only lives in memory.
func NewPoller(client *Client, inbox func(message.InboundMessage) error, allowList *channel.AllowList, kv memory.KVStore, logger *slog.Logger, botUsername, channelName string, config Config) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		client:      client,
		inbox:       inbox,
		allowList:   allowList,
		kv:          kv,
		logger:      logger,
		botUsername: botUsername,
		channelName: channelName,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop signals the polling loop to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// loop runs the long-polling loop until Stop is called.
func (p *Poller) loop() {
	defer close(p.done)

	offset := p.loadOffset()
	var consecutiveErrors int

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		updates, err := p.client.GetUpdates(p.ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", errorPauseDuration,
				)
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(errorPauseDuration):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.handleUpdate(&update)
		}
		if len(updates) > 0 {
			p.saveOffset(offset)
		}
	}
}

// loadOffset restores the persisted update offset, or 0 when no store
// is wired or nothing was saved yet.
func (p *Poller) loadOffset() int {
	if p.kv == nil {
		return 0
	}
	v, ok, err := p.kv.Get(p.ctx, offsetKey)
	if err != nil {
		p.logger.Warn("loading update offset failed", "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	offset, err := strconv.Atoi(v)
	if err != nil {
		p.logger.Warn("stored update offset is not a number", "value", v)
		return 0
	}
	p.logger.Debug("resuming from persisted offset", "offset", offset)
	return offset
}

// saveOffset persists the update offset after a processed batch.
func (p *Poller) saveOffset(offset int) {
	if p.kv == nil {
		return
	}
	if err := p.kv.Put(p.ctx, offsetKey, strconv.Itoa(offset)); err != nil {
		p.logger.Warn("persisting update offset failed", "error", err)
	}
}

// handleUpdate processes a single update.
func (p *Poller) handleUpdate(update *Update) {
	msg, err := convertInbound(update, p.botUsername, p.channelName)
	if err != nil {
		p.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}

	if !p.allowList.IsAllowed(msg) {
		p.logger.Debug("update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return
	}

	// Turn tg://file_id/ refs into download URLs while we still hold
	// the client. Failures keep the ref; downstream treats it as opaque.
	if err := resolveMediaURLs(p.ctx, p.client, &msg); err != nil {
		p.logger.Warn("resolving media urls failed",
			"update_id", update.UpdateID,
			"error", err,
		)
	}

	if err := p.inbox(msg); err != nil {
		p.logger.Error("failed to deliver update to inbox",
			"update_id", update.UpdateID,
			"error", err,
		)
	}
}
