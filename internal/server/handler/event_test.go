package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// stubEventStore returns canned events.
type stubEventStore struct {
	events []domain.Event
	err    error
}

func (s *stubEventStore) Append(context.Context, domain.Event) error { return nil }

func (s *stubEventStore) List(context.Context, domain.ListOpts) ([]domain.Event, error) {
	return s.events, s.err
}

func (s *stubEventStore) ListByKey(context.Context, domain.MarketKey, domain.ListOpts) ([]domain.Event, error) {
	return s.events, s.err
}

// stubBus returns canned stream messages and records the read position.
type stubBus struct {
	msgs      []domain.StreamMessage
	err       error
	lastAfter string
	lastCount int
}

func (b *stubBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *stubBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *stubBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.lastAfter = lastID
	b.lastCount = count
	return b.msgs, b.err
}

func TestStreamEventsReturnsMessagesAndCursor(t *testing.T) {
	bus := &stubBus{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"kind":"market_created"}`)},
		{ID: "2-0", Payload: []byte(`{"kind":"bonds_minted"}`)},
	}}
	h := NewEventHandler(&stubEventStore{}, bus, "ledger:events", slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?after=0-0&limit=10", nil)
	rec := httptest.NewRecorder()
	h.StreamEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0-0", bus.lastAfter)
	assert.Equal(t, 10, bus.lastCount)
	assert.Contains(t, rec.Body.String(), `"next":"2-0"`)
	assert.Contains(t, rec.Body.String(), `"kind":"bonds_minted"`)
}

func TestStreamEventsWithoutBus(t *testing.T) {
	h := NewEventHandler(&stubEventStore{}, nil, "ledger:events", slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil)
	rec := httptest.NewRecorder()
	h.StreamEvents(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamEventsEmptyKeepsCursor(t *testing.T) {
	bus := &stubBus{}
	h := NewEventHandler(&stubEventStore{}, bus, "ledger:events", slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?after=5-0", nil)
	rec := httptest.NewRecorder()
	h.StreamEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next":"5-0"`)
}
