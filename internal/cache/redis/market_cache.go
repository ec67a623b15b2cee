package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondable/internal/domain"
)

const marketKeyPrefix = "market:"

// MarketCache caches market snapshots in Redis so read paths can serve
// without touching the ledger or Postgres.
type MarketCache struct {
	client *Client
	ttl    time.Duration
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache with the given entry TTL.
func NewMarketCache(client *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MarketCache{client: client, ttl: ttl}
}

// Set stores a market snapshot under its composite key.
func (c *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market: %w", err)
	}
	key := marketKeyPrefix + m.Key().String()
	if err := c.client.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", key, err)
	}
	return nil
}

// Get returns the cached market, or domain.ErrNotFound on a miss.
func (c *MarketCache) Get(ctx context.Context, key domain.MarketKey) (domain.Market, error) {
	data, err := c.client.rdb.Get(ctx, marketKeyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", key, err)
	}
	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", key, err)
	}
	return m, nil
}

// Invalidate removes a cached market after a state change.
func (c *MarketCache) Invalidate(ctx context.Context, key domain.MarketKey) error {
	if err := c.client.rdb.Del(ctx, marketKeyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", key, err)
	}
	return nil
}
