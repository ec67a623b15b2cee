// Package service coordinates the ledger with the persistence mirror, cache,
// and event fan-out. Services own the non-authoritative side effects; the
// ledger remains the single source of truth.
package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
)

// MarketService handles market creation and reads, backed by the ledger with
// a Redis read-through cache and a Postgres mirror.
type MarketService struct {
	ledger  *ledger.Ledger
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. The cache may be nil when Redis
// is not wired.
func NewMarketService(
	l *ledger.Ledger,
	markets domain.MarketStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:  l,
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

// Create opens a new market through the ledger, then mirrors it to the store.
// The ledger commit is the operation; a mirror failure afterwards is logged,
// never returned, so callers cannot mistake a created market for a failure.
// Restore reconciles the mirror on the next boot.
func (s *MarketService) Create(ctx context.Context, caller common.Address, p ledger.CreateMarketParams) (domain.MarketKey, error) {
	key, err := s.ledger.CreateMarket(ctx, caller, p)
	if err != nil {
		return domain.MarketKey{}, err
	}

	if err := s.mirror(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "market_service: mirror failed after commit",
			slog.String("market", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market", key.String()),
		slog.String("caller", caller.Hex()),
	)
	return key, nil
}

// Get retrieves a market snapshot, checking the cache first and falling back
// to the ledger on a miss. Returns domain.ErrMarketNotFound if the key is
// unknown.
func (s *MarketService) Get(ctx context.Context, underlying common.Address, maturity int64) (domain.Market, error) {
	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}

	if s.cache != nil {
		if m, err := s.cache.Get(ctx, key); err == nil {
			return m, nil
		}
	}

	m, ok := s.ledger.GetMarket(underlying, maturity)
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, *m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market", key.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return *m, nil
}

// List returns snapshots of every market in creation order.
func (s *MarketService) List(ctx context.Context) []*domain.Market {
	return s.ledger.Markets()
}

// Keys returns every market key in creation order.
func (s *MarketService) Keys(ctx context.Context) []domain.MarketKey {
	return s.ledger.MarketKeys()
}

// mirror writes the current ledger snapshot of a market to the store and
// drops any stale cache entry.
func (s *MarketService) mirror(ctx context.Context, key domain.MarketKey) error {
	m, ok := s.ledger.GetMarket(key.Underlying, key.Maturity)
	if !ok {
		return domain.ErrMarketNotFound
	}
	if err := s.markets.Upsert(ctx, *m); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
