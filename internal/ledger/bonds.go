package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/fixedpoint"
)

// Mint deposits underlying into a not-yet-matured market and credits the
// caller with bonds at the market's fixed price. The deposit amount is in
// 1e18 base units. The custody transfer-in and the balance credit are
// all-or-nothing: if the transfer fails, no ledger state changes.
func (l *Ledger) Mint(ctx context.Context, caller common.Address, underlying common.Address, maturity int64, deposit *uint256.Int) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	m, ok := l.markets[key]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if m.Matured(l.now()) {
		return nil, domain.ErrMarketMatured
	}
	if deposit == nil || deposit.IsZero() {
		return nil, domain.ErrInvalidAmount
	}

	newDeposited, overflow := new(uint256.Int).AddOverflow(m.TotalDeposited, deposit)
	if overflow {
		return nil, fmt.Errorf("ledger: total deposited: %w", domain.ErrArithmeticOverflow)
	}
	if newDeposited.Gt(m.MaximumDebt) {
		return nil, domain.ErrDebtCapExceeded
	}

	bonds, err := fixedpoint.ApplyPrice(deposit, m.Price)
	if err != nil {
		return nil, err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(m.TotalBondSupply, bonds)
	if overflow {
		return nil, fmt.Errorf("ledger: total bond supply: %w", domain.ErrArithmeticOverflow)
	}

	// All validation passed; move the deposit into custody before touching
	// any ledger state so a failed transfer retains nothing.
	if err := l.custodian.TransferIn(ctx, m.Underlying, caller, deposit, m.Decimals); err != nil {
		return nil, fmt.Errorf("ledger: transfer in %s: %w: %w", deposit.Dec(), domain.ErrTransferFailed, err)
	}

	m.TotalDeposited.Set(newDeposited)
	m.TotalBondSupply.Set(newSupply)
	l.creditLocked(key, caller, bonds)

	l.emit(ctx, domain.Event{
		Kind:    domain.EventBondsMinted,
		Key:     key,
		Caller:  caller,
		Deposit: new(uint256.Int).Set(deposit),
		Bonds:   new(uint256.Int).Set(bonds),
		At:      l.now(),
	})
	return bonds, nil
}

// Redeem burns the caller's bonds in a matured market and releases underlying
// at par, floored by the fixed-point rule. The balance debit and the custody
// transfer-out are all-or-nothing under the same rule as Mint.
func (l *Ledger) Redeem(ctx context.Context, caller common.Address, underlying common.Address, maturity int64, bonds *uint256.Int) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.MarketKey{Underlying: underlying, Maturity: maturity}
	m, ok := l.markets[key]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if !m.Matured(l.now()) {
		return nil, domain.ErrMarketNotMatured
	}
	if bonds == nil || bonds.IsZero() {
		return nil, domain.ErrInvalidAmount
	}

	balance, ok := l.balances[key][caller]
	if !ok || balance.Lt(bonds) {
		return nil, domain.ErrInsufficientBalance
	}
	if bonds.Gt(m.TotalBondSupply) {
		return nil, domain.ErrInsufficientSupply
	}

	underlyingOut, err := fixedpoint.RedeemValue(bonds, m.Price)
	if err != nil {
		return nil, err
	}

	if err := l.custodian.TransferOut(ctx, m.Underlying, caller, underlyingOut, m.Decimals); err != nil {
		return nil, fmt.Errorf("ledger: transfer out %s: %w: %w", underlyingOut.Dec(), domain.ErrTransferFailed, err)
	}

	m.TotalBondSupply.Sub(m.TotalBondSupply, bonds)
	balance.Sub(balance, bonds)
	if balance.IsZero() {
		delete(l.balances[key], caller)
	}

	l.emit(ctx, domain.Event{
		Kind:       domain.EventBondsRedeemed,
		Key:        key,
		Caller:     caller,
		Bonds:      new(uint256.Int).Set(bonds),
		Underlying: new(uint256.Int).Set(underlyingOut),
		At:         l.now(),
	})
	return underlyingOut, nil
}
