// Package fixedpoint implements the ledger's decimal accounting: 256-bit
// integer arithmetic on amounts scaled to an 18-decimal fixed-point base.
// There is no floating point anywhere in the accounting path, and every
// operation that could exceed 256 bits fails with ErrArithmeticOverflow
// instead of wrapping.
package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// BaseDecimals is the decimal precision of the accounting base.
const BaseDecimals = 18

// WAD is one whole unit in the accounting base (1e18). Prices are expressed
// as WAD-scaled fractions: a price of 0.95 is 95e16.
var WAD = uint256.NewInt(1e18)

// pow10 returns 10^n, or an overflow error for n large enough that the result
// exceeds 256 bits (10^78 is the first power that does).
func pow10(n uint8) (*uint256.Int, error) {
	if n >= 78 {
		return nil, fmt.Errorf("fixedpoint: 10^%d: %w", n, domain.ErrArithmeticOverflow)
	}
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		out.Mul(out, ten)
	}
	return out, nil
}

// ScaleToBase converts an amount in an asset's native precision to base
// (18-decimal) units. Assets with more than 18 decimals lose sub-base
// precision by floor division.
func ScaleToBase(amount *uint256.Int, sourceDecimals uint8) (*uint256.Int, error) {
	if sourceDecimals == BaseDecimals {
		return new(uint256.Int).Set(amount), nil
	}
	if sourceDecimals < BaseDecimals {
		factor, err := pow10(BaseDecimals - sourceDecimals)
		if err != nil {
			return nil, err
		}
		out, overflow := new(uint256.Int).MulOverflow(amount, factor)
		if overflow {
			return nil, fmt.Errorf("fixedpoint: scale %s to base: %w", amount.Dec(), domain.ErrArithmeticOverflow)
		}
		return out, nil
	}
	factor, err := pow10(sourceDecimals - BaseDecimals)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(amount, factor), nil
}

// ScaleFromBase converts a base amount to an asset's native precision. Going
// to fewer decimals floors away sub-native dust, which stays with the market.
func ScaleFromBase(amount *uint256.Int, targetDecimals uint8) (*uint256.Int, error) {
	if targetDecimals == BaseDecimals {
		return new(uint256.Int).Set(amount), nil
	}
	if targetDecimals < BaseDecimals {
		factor, err := pow10(BaseDecimals - targetDecimals)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Div(amount, factor), nil
	}
	factor, err := pow10(targetDecimals - BaseDecimals)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulOverflow(amount, factor)
	if overflow {
		return nil, fmt.Errorf("fixedpoint: scale %s from base: %w", amount.Dec(), domain.ErrArithmeticOverflow)
	}
	return out, nil
}

// ApplyPrice computes the bonds minted for a deposit:
//
//	bonds = deposit * WAD / price
//
// with floor division, so rounding always favors the issuer. price must be
// non-zero; the registry validates that at market creation.
func ApplyPrice(deposit, price *uint256.Int) (*uint256.Int, error) {
	if price.IsZero() {
		return nil, fmt.Errorf("fixedpoint: apply price: %w", domain.ErrInvalidParameters)
	}
	num, overflow := new(uint256.Int).MulOverflow(deposit, WAD)
	if overflow {
		return nil, fmt.Errorf("fixedpoint: %s * WAD: %w", deposit.Dec(), domain.ErrArithmeticOverflow)
	}
	return num.Div(num, price), nil
}

// RedeemValue computes the underlying released for burned bonds, the inverse
// of ApplyPrice with the same issuer-favoring floor:
//
//	underlying = bonds * price / WAD
func RedeemValue(bonds, price *uint256.Int) (*uint256.Int, error) {
	num, overflow := new(uint256.Int).MulOverflow(bonds, price)
	if overflow {
		return nil, fmt.Errorf("fixedpoint: %s * price: %w", bonds.Dec(), domain.ErrArithmeticOverflow)
	}
	return num.Div(num, WAD), nil
}
