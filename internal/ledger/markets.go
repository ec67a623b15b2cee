package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// maxDecimals bounds the accepted native precision of an underlying asset.
const maxDecimals = 36

// CreateMarketParams carries everything needed to open a new bond market.
// MaximumDebt and Price are in 1e18 base units.
type CreateMarketParams struct {
	Underlying  common.Address
	Maturity    int64
	Decimals    uint8
	MaximumDebt *uint256.Int
	Price       *uint256.Int
	MarketName  string
	TokenName   string
	Symbol      string
}

// CreateMarket opens a new market keyed by (underlying, maturity). Only the
// admin may create markets. The maturity must be in the future, the debt cap
// and price non-zero, and the key unused.
func (l *Ledger) CreateMarket(ctx context.Context, caller common.Address, p CreateMarketParams) (domain.MarketKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.MarketKey{}, domain.ErrUnauthorized
	}
	if err := validateParams(p, l.now().Unix()); err != nil {
		return domain.MarketKey{}, err
	}

	key := domain.MarketKey{Underlying: p.Underlying, Maturity: p.Maturity}
	if _, ok := l.markets[key]; ok {
		return domain.MarketKey{}, domain.ErrDuplicateMarket
	}

	now := l.now()
	l.markets[key] = &domain.Market{
		Underlying:      p.Underlying,
		Maturity:        p.Maturity,
		Decimals:        p.Decimals,
		MaximumDebt:     new(uint256.Int).Set(p.MaximumDebt),
		Price:           new(uint256.Int).Set(p.Price),
		MarketName:      p.MarketName,
		TokenName:       p.TokenName,
		Symbol:          p.Symbol,
		TotalDeposited:  new(uint256.Int),
		TotalBondSupply: new(uint256.Int),
		CreatedAt:       now,
	}
	l.keys = append(l.keys, key)

	l.emit(ctx, domain.Event{
		Kind:   domain.EventMarketCreated,
		Key:    key,
		Caller: caller,
		Params: &domain.MarketParams{
			Decimals:    p.Decimals,
			MaximumDebt: new(uint256.Int).Set(p.MaximumDebt),
			Price:       new(uint256.Int).Set(p.Price),
			MarketName:  p.MarketName,
			TokenName:   p.TokenName,
			Symbol:      p.Symbol,
		},
		At: now,
	})
	return key, nil
}

func validateParams(p CreateMarketParams, nowUnix int64) error {
	switch {
	case p.Price == nil || p.Price.IsZero():
		return fmt.Errorf("price must be positive: %w", domain.ErrInvalidParameters)
	case p.MaximumDebt == nil || p.MaximumDebt.IsZero():
		return fmt.Errorf("maximum debt must be positive: %w", domain.ErrInvalidParameters)
	case p.Maturity <= nowUnix:
		return fmt.Errorf("maturity must be in the future: %w", domain.ErrInvalidParameters)
	case p.Decimals == 0 || p.Decimals > maxDecimals:
		return fmt.Errorf("decimals must be between 1 and %d: %w", maxDecimals, domain.ErrInvalidParameters)
	}
	return nil
}
