package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache for market snapshots.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	// Get returns ErrNotFound on a cache miss.
	Get(ctx context.Context, key MarketKey) (Market, error)
	Invalidate(ctx context.Context, key MarketKey) error
}

// RateLimiter applies fixed-window request limits, keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus fans ledger events out to external consumers: ephemeral pub/sub
// channels for live subscribers and a durable stream for catch-up reads.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel that closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
