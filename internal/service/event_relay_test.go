package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// fakeEventStore records appended events.
type fakeEventStore struct {
	mu       sync.Mutex
	appended []domain.Event
}

func (s *fakeEventStore) Append(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, ev)
	return nil
}

func (s *fakeEventStore) List(context.Context, domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

func (s *fakeEventStore) ListByKey(context.Context, domain.MarketKey, domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

// fakeBus records publishes and stream appends.
type fakeBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testEvent(kind domain.EventKind) domain.Event {
	return domain.Event{
		ID:     uuid.New(),
		Kind:   kind,
		Caller: common.HexToAddress("0x000000000000000000000000000000000000a11c"),
		At:     time.Unix(1672547973, 0).UTC(),
	}
}

func TestEventRelayDeliversInCommitOrder(t *testing.T) {
	store := &fakeEventStore{}
	bus := &fakeBus{}
	relay := NewEventRelay(store, bus, nil, slog.Default())

	events := []domain.Event{
		testEvent(domain.EventMarketCreated),
		testEvent(domain.EventBondsMinted),
		testEvent(domain.EventBondsRedeemed),
	}
	for _, ev := range events {
		relay.Emit(context.Background(), ev)
	}

	// A cancelled context makes Run drain the queue and return.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := relay.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, store.appended, 3)
	for i, ev := range events {
		assert.Equal(t, ev.ID, store.appended[i].ID)
	}

	require.Len(t, bus.published, 3)
	require.Len(t, bus.streamed, 3)
	var first domain.Event
	require.NoError(t, json.Unmarshal(bus.published[0], &first))
	assert.Equal(t, events[0].ID, first.ID)
	assert.Equal(t, domain.EventMarketCreated, first.Kind)
}

func TestEventRelayWithoutBus(t *testing.T) {
	store := &fakeEventStore{}
	relay := NewEventRelay(store, nil, nil, slog.Default())

	relay.Emit(context.Background(), testEvent(domain.EventAdminTransferred))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, relay.Run(ctx), context.Canceled)

	require.Len(t, store.appended, 1)
	assert.Equal(t, domain.EventAdminTransferred, store.appended[0].Kind)
}
