package domain

import "errors"

// Ledger error kinds. Every mutating ledger operation is all-or-nothing: when
// one of these is returned, no state change was retained.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDuplicateMarket     = errors.New("market already exists")
	ErrInvalidParameters   = errors.New("invalid market parameters")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketMatured       = errors.New("market has matured")
	ErrMarketNotMatured    = errors.New("market has not matured")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDebtCapExceeded     = errors.New("maximum debt exceeded")
	ErrInsufficientSupply  = errors.New("insufficient bond supply")
	ErrInsufficientBalance = errors.New("insufficient bond balance")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrTransferFailed      = errors.New("external transfer failed")
)

// Infrastructure errors shared by stores and caches.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)
