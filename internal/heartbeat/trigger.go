package heartbeat

import (
	"context"
	"net/http"
)

// Trigger exposes the heartbeat on the gateway's webhook surface: a
// POST to /webhooks/heartbeat forces an immediate sweep. It satisfies
// the gateway's WebhookHandler interface. Authentication is the
// dispatcher's shared-secret check; the request body is ignored.
type Trigger struct {
	hb *Heartbeat
}

// NewTrigger creates a Trigger for the given heartbeat.
func NewTrigger(hb *Heartbeat) *Trigger {
	return &Trigger{hb: hb}
}

// HandleWebhook runs one sweep. It returns ErrNotStarted when the
// heartbeat is not running, which the gateway surfaces as a 500.
func (t *Trigger) HandleWebhook(ctx context.Context, source string, _ []byte, _ http.Header) error {
	t.hb.cfg.Logger.Info("heartbeat: external trigger", "source", source)
	return t.hb.TickNow(ctx)
}
