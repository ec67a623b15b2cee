package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
)

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), WAD)
}

func TestApplyPrice(t *testing.T) {
	// $0.95 per bond: a 95-unit deposit buys exactly 100 bonds.
	price := new(uint256.Int).Mul(uint256.NewInt(95), uint256.NewInt(1e16))

	bonds, err := ApplyPrice(wad(95), price)
	require.NoError(t, err)
	assert.Equal(t, wad(100), bonds)

	// Floor division: one base unit of deposit at price 0.95 yields
	// floor(1e18/0.95e18) = 1 bond base unit, not 1.05.
	bonds, err = ApplyPrice(uint256.NewInt(1), price)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1), bonds)

	// Par price is identity.
	bonds, err = ApplyPrice(wad(7), WAD)
	require.NoError(t, err)
	assert.Equal(t, wad(7), bonds)
}

func TestApplyPriceRejectsZeroPrice(t *testing.T) {
	_, err := ApplyPrice(wad(1), uint256.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestApplyPriceOverflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	_, err := ApplyPrice(huge, WAD)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestRedeemValue(t *testing.T) {
	price := new(uint256.Int).Mul(uint256.NewInt(95), uint256.NewInt(1e16))

	underlying, err := RedeemValue(wad(100), price)
	require.NoError(t, err)
	assert.Equal(t, wad(95), underlying)

	_, err = RedeemValue(new(uint256.Int).SetAllOne(), price)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestMintRedeemRoundTripNeverGains(t *testing.T) {
	// Deposits that are not exact multiples of the price lose dust to the
	// issuer; the round trip must never return more than was deposited.
	price := new(uint256.Int).Mul(uint256.NewInt(95), uint256.NewInt(1e16))
	deposits := []*uint256.Int{
		uint256.NewInt(1),
		uint256.NewInt(94),
		uint256.NewInt(12345678901),
		wad(95),
		wad(96),
	}
	for _, d := range deposits {
		bonds, err := ApplyPrice(d, price)
		require.NoError(t, err)
		back, err := RedeemValue(bonds, price)
		require.NoError(t, err)
		assert.True(t, back.Cmp(d) <= 0, "deposit %s came back as %s", d.Dec(), back.Dec())
	}

	// Exact multiple round-trips to equality.
	bonds, err := ApplyPrice(wad(95), price)
	require.NoError(t, err)
	back, err := RedeemValue(bonds, price)
	require.NoError(t, err)
	assert.Equal(t, wad(95), back)
}

func TestScaleToBase(t *testing.T) {
	// 6-decimal asset (USDC-style): 1 native unit is 1e12 base units.
	out, err := ScaleToBase(uint256.NewInt(1_000_000), 6)
	require.NoError(t, err)
	assert.Equal(t, wad(1), out)

	// 18-decimal asset passes through.
	out, err = ScaleToBase(wad(3), 18)
	require.NoError(t, err)
	assert.Equal(t, wad(3), out)

	// 24-decimal asset floors away sub-base precision.
	in := new(uint256.Int).Mul(wad(1), uint256.NewInt(1_000_001))
	out, err = ScaleToBase(in, 24)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1e12+1), out)

	_, err = ScaleToBase(new(uint256.Int).SetAllOne(), 6)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestScaleFromBase(t *testing.T) {
	out, err := ScaleFromBase(wad(1), 6)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1_000_000), out)

	// Dust below native precision is floored.
	in := new(uint256.Int).Add(wad(1), uint256.NewInt(999_999_999_999))
	out, err = ScaleFromBase(in, 6)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1_000_000), out)

	_, err = ScaleFromBase(new(uint256.Int).SetAllOne(), 36)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestScaleRoundTrip(t *testing.T) {
	// Native -> base -> native is lossless for decimals <= 18.
	for _, dec := range []uint8{0, 1, 6, 8, 18} {
		in := uint256.NewInt(987654321)
		base, err := ScaleToBase(in, dec)
		require.NoError(t, err)
		back, err := ScaleFromBase(base, dec)
		require.NoError(t, err)
		assert.Equal(t, in, back, "decimals %d", dec)
	}
}
