package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
)

// BondService handles minting and redemption, mirroring the resulting market
// totals and holder balances to the persistent store after each commit.
type BondService struct {
	ledger   *ledger.Ledger
	markets  domain.MarketStore
	balances domain.BalanceStore
	cache    domain.MarketCache
	logger   *slog.Logger
}

// NewBondService creates a BondService. The cache may be nil.
func NewBondService(
	l *ledger.Ledger,
	markets domain.MarketStore,
	balances domain.BalanceStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *BondService {
	return &BondService{
		ledger:   l,
		markets:  markets,
		balances: balances,
		cache:    cache,
		logger:   logger,
	}
}

// Mint deposits underlying and credits the caller with bonds. The returned
// amount is the bonds minted, in 1e18 base units.
func (s *BondService) Mint(ctx context.Context, caller, underlying common.Address, maturity int64, deposit *uint256.Int) (*uint256.Int, error) {
	bonds, err := s.ledger.Mint(ctx, caller, underlying, maturity, deposit)
	if err != nil {
		return nil, err
	}

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	if err := s.mirror(ctx, key, caller); err != nil {
		s.logger.ErrorContext(ctx, "bond_service: mirror failed after commit",
			slog.String("market", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bond_service: bonds minted",
		slog.String("market", key.String()),
		slog.String("holder", caller.Hex()),
		slog.String("deposit", deposit.Dec()),
		slog.String("bonds", bonds.Dec()),
	)
	return bonds, nil
}

// Redeem burns the caller's bonds in a matured market and releases the
// underlying at par.
func (s *BondService) Redeem(ctx context.Context, caller, underlying common.Address, maturity int64, bonds *uint256.Int) (*uint256.Int, error) {
	out, err := s.ledger.Redeem(ctx, caller, underlying, maturity, bonds)
	if err != nil {
		return nil, err
	}

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	if err := s.mirror(ctx, key, caller); err != nil {
		s.logger.ErrorContext(ctx, "bond_service: mirror failed after commit",
			slog.String("market", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bond_service: bonds redeemed",
		slog.String("market", key.String()),
		slog.String("holder", caller.Hex()),
		slog.String("bonds", bonds.Dec()),
		slog.String("underlying", out.Dec()),
	)
	return out, nil
}

// BalanceOf returns the holder's bond balance. Unknown holders have a zero
// balance.
func (s *BondService) BalanceOf(ctx context.Context, underlying common.Address, maturity int64, holder common.Address) *uint256.Int {
	return s.ledger.BalanceOf(underlying, maturity, holder)
}

// Balances returns every non-zero bond balance across all markets.
func (s *BondService) Balances(ctx context.Context) []domain.BondBalance {
	return s.ledger.Balances()
}

// mirror writes the post-commit market totals and the caller's balance to the
// store and invalidates the cached market. The ledger has already committed;
// a mirror failure never fails the operation, Restore reconciles at the next
// boot.
func (s *BondService) mirror(ctx context.Context, key domain.MarketKey, holder common.Address) error {
	m, ok := s.ledger.GetMarket(key.Underlying, key.Maturity)
	if !ok {
		return domain.ErrMarketNotFound
	}
	if err := s.markets.Upsert(ctx, *m); err != nil {
		return err
	}

	balance := s.ledger.BalanceOf(key.Underlying, key.Maturity, holder)
	if err := s.balances.Set(ctx, key, holder, balance); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "bond_service: cache invalidate failed",
				slog.String("market", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
