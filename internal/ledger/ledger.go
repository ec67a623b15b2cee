// Package ledger implements the bond issuance and redemption engine: a
// sequential state machine over markets and per-holder bond balances. Each
// mutating operation is a single atomic transition; the only external call
// inside a transition is the custody transfer, and a transfer failure leaves
// every ledger field at its pre-call value.
//
// The ledger performs no logging and no retries. Callers surface the error
// kinds from the domain package verbatim.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// Ledger owns every market record and bond balance. All mutations are
// serialized behind one mutex; reads take a shared lock and return deep
// copies so callers never observe an in-progress transition.
type Ledger struct {
	mu sync.RWMutex

	admin    common.Address
	markets  map[domain.MarketKey]*domain.Market
	keys     []domain.MarketKey // insertion order
	balances map[domain.MarketKey]map[common.Address]*uint256.Int

	clock     domain.Clock
	custodian domain.Custodian
	sink      domain.EventSink
}

// New creates an empty ledger with the given admin identity. The clock and
// custodian are required; sink may be nil when no observer is wired.
func New(admin common.Address, clock domain.Clock, custodian domain.Custodian, sink domain.EventSink) *Ledger {
	return &Ledger{
		admin:     admin,
		markets:   make(map[domain.MarketKey]*domain.Market),
		balances:  make(map[domain.MarketKey]map[common.Address]*uint256.Int),
		clock:     clock,
		custodian: custodian,
		sink:      sink,
	}
}

// Admin returns the current admin identity.
func (l *Ledger) Admin() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admin
}

// TransferAdmin hands the admin capability to newAdmin. Only the current
// admin may call it.
func (l *Ledger) TransferAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	l.admin = newAdmin

	l.emit(ctx, domain.Event{
		Kind:     domain.EventAdminTransferred,
		Caller:   caller,
		NewAdmin: &newAdmin,
		At:       l.clock.Now(),
	})
	return nil
}

// GetMarket returns a snapshot of the market for (underlying, maturity).
// Absence is not an error; the second return reports existence.
func (l *Ledger) GetMarket(underlying common.Address, maturity int64) (*domain.Market, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.markets[domain.MarketKey{Underlying: underlying, Maturity: maturity}]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// MarketKeys returns every market key in insertion order. The order is
// stable across calls.
func (l *Ledger) MarketKeys() []domain.MarketKey {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.MarketKey, len(l.keys))
	copy(out, l.keys)
	return out
}

// Markets returns snapshots of every market in insertion order.
func (l *Ledger) Markets() []*domain.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Market, 0, len(l.keys))
	for _, k := range l.keys {
		out = append(out, l.markets[k].Clone())
	}
	return out
}

// BalanceOf returns the holder's bond balance for (underlying, maturity).
// Holders with no position have a zero balance, never an error.
func (l *Ledger) BalanceOf(underlying common.Address, maturity int64, holder common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	if b, ok := l.balances[key][holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Balances returns every non-zero bond balance.
func (l *Ledger) Balances() []domain.BondBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.BondBalance
	for _, k := range l.keys {
		for holder, amount := range l.balances[k] {
			out = append(out, domain.BondBalance{
				Key:    k,
				Holder: holder,
				Amount: new(uint256.Int).Set(amount),
			})
		}
	}
	return out
}

// Restore loads previously persisted markets and balances, in the order the
// markets were originally created. It is intended for boot time only and
// emits no events.
func (l *Ledger) Restore(markets []domain.Market, balances []domain.BondBalance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range markets {
		m := markets[i].Clone()
		key := m.Key()
		if _, ok := l.markets[key]; ok {
			return domain.ErrDuplicateMarket
		}
		l.markets[key] = m
		l.keys = append(l.keys, key)
	}
	for _, b := range balances {
		if _, ok := l.markets[b.Key]; !ok {
			return domain.ErrMarketNotFound
		}
		if b.Amount == nil || b.Amount.IsZero() {
			continue
		}
		l.creditLocked(b.Key, b.Holder, b.Amount)
	}
	return nil
}

// creditLocked adds bonds to a holder's balance. Callers hold the write lock.
func (l *Ledger) creditLocked(key domain.MarketKey, holder common.Address, amount *uint256.Int) {
	byHolder, ok := l.balances[key]
	if !ok {
		byHolder = make(map[common.Address]*uint256.Int)
		l.balances[key] = byHolder
	}
	if b, ok := byHolder[holder]; ok {
		b.Add(b, amount)
	} else {
		byHolder[holder] = new(uint256.Int).Set(amount)
	}
}

// emit delivers an event to the sink, if one is wired. Called with the write
// lock held so per-key delivery order matches commit order; sinks are
// expected to hand off quickly.
func (l *Ledger) emit(ctx context.Context, ev domain.Event) {
	if l.sink == nil {
		return
	}
	ev.ID = uuid.New()
	l.sink.Emit(ctx, ev)
}

// now is a small helper so operation code reads naturally.
func (l *Ledger) now() time.Time {
	return l.clock.Now()
}
