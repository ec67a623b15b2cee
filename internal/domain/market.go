// Package domain defines the core types of the bond ledger: markets, bond
// balances, ledger events, error kinds, and the interfaces implemented by the
// persistence, cache, and custody layers.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MarketKey uniquely identifies a bond market: one underlying asset and one
// maturity timestamp. Two markets on the same underlying with different
// maturities are independent.
type MarketKey struct {
	Underlying common.Address `json:"underlying"`
	Maturity   int64          `json:"maturity"` // unix seconds
}

// String renders the key as "<underlying>:<maturity>", the canonical form
// used in cache keys, event channels, and URL paths.
func (k MarketKey) String() string {
	return strings.ToLower(k.Underlying.Hex()) + ":" + strconv.FormatInt(k.Maturity, 10)
}

// ParseMarketKey parses the canonical "<underlying>:<maturity>" form.
func ParseMarketKey(s string) (MarketKey, error) {
	addr, mat, ok := strings.Cut(s, ":")
	if !ok {
		return MarketKey{}, fmt.Errorf("domain: market key %q: missing separator", s)
	}
	if !common.IsHexAddress(addr) {
		return MarketKey{}, fmt.Errorf("domain: market key %q: invalid underlying address", s)
	}
	maturity, err := strconv.ParseInt(mat, 10, 64)
	if err != nil {
		return MarketKey{}, fmt.Errorf("domain: market key %q: invalid maturity: %w", s, err)
	}
	return MarketKey{Underlying: common.HexToAddress(addr), Maturity: maturity}, nil
}

// Market is one bond offering. Everything except TotalDeposited and
// TotalBondSupply is immutable after creation; the two running totals only
// grow, and only before maturity.
type Market struct {
	Underlying common.Address `json:"underlying"`
	Maturity   int64          `json:"maturity"`

	// Decimals is the underlying token's native decimal precision. Ledger
	// amounts are always held in the 1e18 base; Decimals is only consulted
	// when converting to native units for custody transfers.
	Decimals uint8 `json:"decimals"`

	// MaximumDebt caps cumulative underlying deposits, in 1e18 base units.
	MaximumDebt *uint256.Int `json:"maximum_debt"`

	// Price is the fixed exchange rate in 1e18 fixed point: bonds minted per
	// unit of underlying deposited. A discount market has price < 1e18,
	// though the ledger only requires price > 0.
	Price *uint256.Int `json:"price"`

	MarketName string `json:"market_name"`
	TokenName  string `json:"token_name"`
	Symbol     string `json:"symbol"`

	TotalDeposited  *uint256.Int `json:"total_deposited"`
	TotalBondSupply *uint256.Int `json:"total_bond_supply"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the registry key for this market.
func (m *Market) Key() MarketKey {
	return MarketKey{Underlying: m.Underlying, Maturity: m.Maturity}
}

// Matured reports whether the market has reached maturity at the given time.
// The minting window is strictly [creation, maturity); redemption opens at
// the maturity instant.
func (m *Market) Matured(at time.Time) bool {
	return at.Unix() >= m.Maturity
}

// Clone returns a deep copy so callers can hold a snapshot without aliasing
// the ledger's mutable totals.
func (m *Market) Clone() *Market {
	out := *m
	out.MaximumDebt = new(uint256.Int).Set(m.MaximumDebt)
	out.Price = new(uint256.Int).Set(m.Price)
	out.TotalDeposited = new(uint256.Int).Set(m.TotalDeposited)
	out.TotalBondSupply = new(uint256.Int).Set(m.TotalBondSupply)
	return &out
}

// BondBalance is a per-holder, per-market quantity of outstanding bonds.
type BondBalance struct {
	Key    MarketKey      `json:"key"`
	Holder common.Address `json:"holder"`
	Amount *uint256.Int   `json:"amount"`
}
