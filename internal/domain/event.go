package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventKind identifies a ledger event type.
type EventKind string

const (
	EventMarketCreated    EventKind = "market_created"
	EventBondsMinted      EventKind = "bonds_minted"
	EventBondsRedeemed    EventKind = "bonds_redeemed"
	EventAdminTransferred EventKind = "admin_transferred"
)

// Event is an append-only record of one successful ledger operation. Per-key
// event order matches the order in which the operations committed.
type Event struct {
	ID     uuid.UUID      `json:"id"`
	Kind   EventKind      `json:"kind"`
	Key    MarketKey      `json:"key"` // zero for admin_transferred
	Caller common.Address `json:"caller"`

	// Deposit is the underlying deposited (bonds_minted only).
	Deposit *uint256.Int `json:"deposit,omitempty"`
	// Bonds is the bond amount minted or burned.
	Bonds *uint256.Int `json:"bonds,omitempty"`
	// Underlying is the underlying released (bonds_redeemed only).
	Underlying *uint256.Int `json:"underlying,omitempty"`
	// NewAdmin is set for admin_transferred.
	NewAdmin *common.Address `json:"new_admin,omitempty"`
	// Params carries the creation parameters (market_created only).
	Params *MarketParams `json:"params,omitempty"`

	At time.Time `json:"at"`
}

// MarketParams is the market_created event payload: everything an observer
// needs to reconstruct the market besides the key itself. Amounts are in 1e18
// base units.
type MarketParams struct {
	Decimals    uint8        `json:"decimals"`
	MaximumDebt *uint256.Int `json:"maximum_debt"`
	Price       *uint256.Int `json:"price"`
	MarketName  string       `json:"market_name,omitempty"`
	TokenName   string       `json:"token_name,omitempty"`
	Symbol      string       `json:"symbol,omitempty"`
}
