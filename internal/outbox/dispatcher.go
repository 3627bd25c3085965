package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/madina-market/madina_pay/internal/notification"
)

const defaultBatchSize = 100

// Dispatcher polls the outbox and hands events to the notifier. Events that
// fail to send stay pending and are retried on the next tick.
type Dispatcher struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	interval time.Duration
}

// NewDispatcher builds an outbox dispatcher.
func NewDispatcher(store Store, notifier notification.Notifier, logger *slog.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{store: store, notifier: notifier, logger: logger, interval: interval}
}

// Run drains the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchPending(ctx); err != nil {
				d.logger.Warn("outbox dispatch", "error", err)
			}
		}
	}
}

// DispatchPending sends one batch of pending events.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	events, err := d.store.PendingEvents(ctx, defaultBatchSize)
	if err != nil {
		return err
	}

	sent := make([]string, 0, len(events))
	for _, ev := range events {
		msg := notification.Message{Kind: ev.Kind, Recipient: ev.Recipient, Body: ev.Body}
		if err := d.notifier.Send(ctx, msg); err != nil {
			d.logger.Warn("notification send failed", "event_id", ev.ID, "kind", ev.Kind, "error", err)
			continue
		}
		sent = append(sent, ev.ID)
	}

	if len(sent) == 0 {
		return nil
	}
	return d.store.MarkDispatched(ctx, sent)
}
