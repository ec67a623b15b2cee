package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/notify"
)

// EventChannel is the pub/sub channel live subscribers listen on.
const EventChannel = "ledger.events"

// EventStream is the durable stream catch-up readers consume.
const EventStream = "ledger:events"

// EventRelay receives committed ledger events and fans them out: the Postgres
// journal, the Redis bus (pub/sub plus stream), and operator notifications.
// Emit only hands off to a buffered channel so the ledger is never blocked;
// a full buffer drops the event from the relay (the ledger state itself is
// unaffected) and logs it.
type EventRelay struct {
	events   domain.EventStore
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger

	queue chan domain.Event
}

var _ domain.EventSink = (*EventRelay)(nil)

// NewEventRelay creates an EventRelay. The bus and notifier may be nil when
// not wired; the journal is required.
func NewEventRelay(events domain.EventStore, bus domain.EventBus, notifier *notify.Notifier, logger *slog.Logger) *EventRelay {
	return &EventRelay{
		events:   events,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "event_relay")),
		queue:    make(chan domain.Event, 1024),
	}
}

// Emit enqueues a committed event for delivery. It never blocks.
func (r *EventRelay) Emit(ctx context.Context, ev domain.Event) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Error("event queue full, dropping event",
			slog.String("event_id", ev.ID.String()),
			slog.String("kind", string(ev.Kind)),
		)
	}
}

// Run consumes the queue until ctx is cancelled, delivering each event in
// commit order. It drains the queue before returning so events emitted during
// shutdown still reach the journal.
func (r *EventRelay) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.deliver(context.WithoutCancel(ctx), ev)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// deliver writes one event to every outlet. Outlet failures are independent:
// a journal error does not stop the bus publish, and vice versa.
func (r *EventRelay) deliver(ctx context.Context, ev domain.Event) {
	if err := r.events.Append(ctx, ev); err != nil {
		r.logger.ErrorContext(ctx, "journal append failed",
			slog.String("event_id", ev.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if r.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.ErrorContext(ctx, "event marshal failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			if err := r.bus.Publish(ctx, EventChannel, payload); err != nil {
				r.logger.WarnContext(ctx, "bus publish failed",
					slog.String("event_id", ev.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			if err := r.bus.StreamAppend(ctx, EventStream, payload); err != nil {
				r.logger.WarnContext(ctx, "stream append failed",
					slog.String("event_id", ev.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyEvent(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "notification failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
