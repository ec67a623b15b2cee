package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// EventHandler serves the event journal and stream catch-up endpoints.
type EventHandler struct {
	events domain.EventStore
	bus    domain.EventBus
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler. The bus may be nil when Redis is
// not wired; the stream endpoint then reports unavailable.
func NewEventHandler(events domain.EventStore, bus domain.EventBus, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		bus:    bus,
		stream: stream,
		logger: logger,
	}
}

// ListEvents returns journal events across all markets, in commit order.
// GET /api/events?limit=50&offset=0&since=...&until=...
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.events.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// ListMarketEvents returns one market's journal events, in commit order.
// GET /api/markets/{underlying}/{maturity}/events
func (h *EventHandler) ListMarketEvents(w http.ResponseWriter, r *http.Request) {
	underlying, err := pathAddress(r, "underlying")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maturity, err := pathMaturity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	opts := parseListOpts(r)

	events, err := h.events.ListByKey(r.Context(), key, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market events failed",
			slog.String("market", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market": key.String(),
		"events": events,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// streamEntry is one stream message: the broker-assigned ID clients resume
// from, plus the serialized event.
type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// StreamEvents reads the capped event stream for catch-up after a WebSocket
// disconnect. Clients pass the last stream ID they saw and resume from there.
// GET /api/events/stream?after=<id>&limit=100
func (h *EventHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	after := r.URL.Query().Get("after")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	entries := make([]streamEntry, len(msgs))
	next := after
	for i, m := range msgs {
		entries[i] = streamEntry{ID: m.ID, Event: json.RawMessage(m.Payload)}
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": entries,
		"next":     next,
	})
}
