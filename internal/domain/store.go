package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore mirrors market records durably. The in-memory ledger is
// authoritative; the store exists so state survives a restart.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	Get(ctx context.Context, key MarketKey) (Market, error)
	// List returns all markets in insertion order.
	List(ctx context.Context) ([]Market, error)
}

// BalanceStore mirrors per-holder bond balances.
type BalanceStore interface {
	// Set writes the holder's balance for a market. A zero amount removes
	// the row.
	Set(ctx context.Context, key MarketKey, holder common.Address, amount *uint256.Int) error
	List(ctx context.Context) ([]BondBalance, error)
}

// EventStore persists the append-only ledger event journal.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListByKey(ctx context.Context, key MarketKey, opts ListOpts) ([]Event, error)
}

// Clock supplies the current time for maturity comparisons. Production wiring
// uses the system clock; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// Custodian moves the underlying asset between holders and the market's
// custody account. Transfers are all-or-nothing: a non-nil error means no
// value moved, and the ledger must retain no paired state change. Amounts are
// in 1e18 base units; decimals is the asset's native precision.
type Custodian interface {
	TransferIn(ctx context.Context, asset common.Address, from common.Address, amount *uint256.Int, decimals uint8) error
	TransferOut(ctx context.Context, asset common.Address, to common.Address, amount *uint256.Int, decimals uint8) error
}

// EventSink receives every committed ledger event, in commit order. Sinks
// must not block the ledger for long; delivery failures are the sink's
// problem, never the ledger's.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}
