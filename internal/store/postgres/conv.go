package postgres

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// addrText renders an address in the canonical stored form.
func addrText(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// amountText renders a 256-bit amount as decimal text; nil stores as "0".
func amountText(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// amountFromText parses a stored decimal amount.
func amountFromText(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("postgres: amount %q: %w", s, err)
	}
	return v, nil
}

// nullableAmount renders an optional amount for nullable event columns.
func nullableAmount(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}
