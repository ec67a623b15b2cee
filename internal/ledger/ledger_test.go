package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/fixedpoint"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice  = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc   = common.HexToAddress("0x4DBCdF9B62e891a7cec5A2568C3F4FAF9E8Abe2b")
	wbtc   = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	dec22  = int64(1672547973)
	wadInt = uint256.NewInt(1e18)
)

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wadInt)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0).UTC()
}

// fakeCustodian records transfers and can be told to fail.
type fakeCustodian struct {
	mu       sync.Mutex
	failIn   error
	failOut  error
	ins      int
	outs     int
	lastIn   *uint256.Int
	lastOut  *uint256.Int
	lastDecs uint8
}

func (f *fakeCustodian) TransferIn(_ context.Context, _ common.Address, _ common.Address, amount *uint256.Int, decimals uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIn != nil {
		return f.failIn
	}
	f.ins++
	f.lastIn = new(uint256.Int).Set(amount)
	f.lastDecs = decimals
	return nil
}

func (f *fakeCustodian) TransferOut(_ context.Context, _ common.Address, _ common.Address, amount *uint256.Int, decimals uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOut != nil {
		return f.failOut
	}
	f.outs++
	f.lastOut = new(uint256.Int).Set(amount)
	f.lastDecs = decimals
	return nil
}

// recordSink collects emitted events.
type recordSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordSink) Emit(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	ledger    *Ledger
	clock     *fakeClock
	custodian *fakeCustodian
	sink      *recordSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock(dec22 - 86_400) // one day before the reference maturity
	custodian := &fakeCustodian{}
	sink := &recordSink{}
	return &fixture{
		ledger:    New(admin, clock, custodian, sink),
		clock:     clock,
		custodian: custodian,
		sink:      sink,
	}
}

// usdcParams mirrors the reference market: $100,000 cap, $0.95 per bond.
func usdcParams() CreateMarketParams {
	return CreateMarketParams{
		Underlying:  usdc,
		Maturity:    dec22,
		Decimals:    6,
		MaximumDebt: wad(100_000),
		Price:       new(uint256.Int).Mul(uint256.NewInt(95), uint256.NewInt(1e16)),
		MarketName:  "0xKernel-5.25%-1672547971",
		TokenName:   "0xKernel-Dec-22-Debt",
		Symbol:      "KERN-DEC",
	}
}

func TestCreateMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketKey{Underlying: usdc, Maturity: dec22}, key)

	m, ok := f.ledger.GetMarket(usdc, dec22)
	require.True(t, ok)
	assert.True(t, m.TotalDeposited.IsZero())
	assert.True(t, m.TotalBondSupply.IsZero())
	assert.Equal(t, "KERN-DEC", m.Symbol)
	assert.Equal(t, []domain.EventKind{domain.EventMarketCreated}, f.sink.kinds())

	// The event carries the full creation parameters for observers.
	ev := f.sink.events[0]
	require.NotNil(t, ev.Params)
	assert.Equal(t, uint8(6), ev.Params.Decimals)
	assert.Equal(t, wad(100_000), ev.Params.MaximumDebt)
	assert.Equal(t, usdcParams().Price, ev.Params.Price)
	assert.Equal(t, "KERN-DEC", ev.Params.Symbol)
}

func TestCreateMarketUnauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateMarket(context.Background(), alice, usdcParams())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, f.ledger.MarketKeys())
}

func TestCreateMarketDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	// Same key, different metadata: rejected, existing record untouched.
	dup := usdcParams()
	dup.Symbol = "OTHER"
	dup.MaximumDebt = wad(1)
	_, err = f.ledger.CreateMarket(ctx, admin, dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateMarket)

	m, ok := f.ledger.GetMarket(usdc, dec22)
	require.True(t, ok)
	assert.Equal(t, "KERN-DEC", m.Symbol)
	assert.Equal(t, wad(100_000), m.MaximumDebt)
	assert.Len(t, f.ledger.MarketKeys(), 1)
}

func TestCreateMarketInvalidParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*CreateMarketParams){
		"zero price":        func(p *CreateMarketParams) { p.Price = uint256.NewInt(0) },
		"zero debt cap":     func(p *CreateMarketParams) { p.MaximumDebt = uint256.NewInt(0) },
		"past maturity":     func(p *CreateMarketParams) { p.Maturity = f.clock.Now().Unix() - 1 },
		"maturity is now":   func(p *CreateMarketParams) { p.Maturity = f.clock.Now().Unix() },
		"decimals too high": func(p *CreateMarketParams) { p.Decimals = 37 },
		"zero decimals":     func(p *CreateMarketParams) { p.Decimals = 0 },
	} {
		p := usdcParams()
		mutate(&p)
		_, err := f.ledger.CreateMarket(ctx, admin, p)
		assert.ErrorIs(t, err, domain.ErrInvalidParameters, name)
	}
	assert.Empty(t, f.ledger.MarketKeys())
}

func TestMarketKeysInsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	want := make([]domain.MarketKey, 0, 4)
	for i, p := range []CreateMarketParams{
		usdcParams(),
		{Underlying: usdc, Maturity: dec22 + 100, Decimals: 6, MaximumDebt: wad(1), Price: wadInt},
		{Underlying: wbtc, Maturity: dec22, Decimals: 8, MaximumDebt: wad(1), Price: wadInt},
		{Underlying: wbtc, Maturity: dec22 + 100, Decimals: 8, MaximumDebt: wad(1), Price: wadInt},
	} {
		key, err := f.ledger.CreateMarket(ctx, admin, p)
		require.NoError(t, err, "market %d", i)
		want = append(want, key)
	}

	assert.Equal(t, want, f.ledger.MarketKeys())
	// Stable across calls.
	assert.Equal(t, want, f.ledger.MarketKeys())
}

func TestMintReferenceScenario(t *testing.T) {
	// Deposit 95e18 at price 0.95e18 yields exactly 100e18 bonds; after
	// maturity those 100e18 bonds redeem for exactly 95e18 underlying.
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	bonds, err := f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	require.NoError(t, err)
	assert.Equal(t, wad(100), bonds)
	assert.Equal(t, wad(100), f.ledger.BalanceOf(usdc, dec22, alice))
	assert.Equal(t, 1, f.custodian.ins)
	assert.Equal(t, uint8(6), f.custodian.lastDecs)

	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(95), m.TotalDeposited)
	assert.Equal(t, wad(100), m.TotalBondSupply)

	f.clock.Set(dec22)
	out, err := f.ledger.Redeem(ctx, alice, usdc, dec22, wad(100))
	require.NoError(t, err)
	assert.Equal(t, wad(95), out)
	assert.True(t, f.ledger.BalanceOf(usdc, dec22, alice).IsZero())

	m, _ = f.ledger.GetMarket(usdc, dec22)
	assert.True(t, m.TotalBondSupply.IsZero())
	// TotalDeposited is a running sum of deposits; redemption never lowers it.
	assert.Equal(t, wad(95), m.TotalDeposited)

	assert.Equal(t, []domain.EventKind{
		domain.EventMarketCreated,
		domain.EventBondsMinted,
		domain.EventBondsRedeemed,
	}, f.sink.kinds())
}

func TestMintBondAmountIsFloored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	deposit := uint256.NewInt(94) // not a multiple of 0.95
	bonds, err := f.ledger.Mint(ctx, alice, usdc, dec22, deposit)
	require.NoError(t, err)

	want, err := fixedpoint.ApplyPrice(deposit, usdcParams().Price)
	require.NoError(t, err)
	assert.Equal(t, want, bonds)

	// Round trip after maturity never yields more than the deposit.
	f.clock.Set(dec22 + 1)
	out, err := f.ledger.Redeem(ctx, alice, usdc, dec22, bonds)
	require.NoError(t, err)
	assert.True(t, out.Cmp(deposit) <= 0)
}

func TestMintMarketNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Mint(context.Background(), alice, usdc, dec22, wad(1))
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestMintAfterMaturity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	// Minting at the maturity instant is already forbidden.
	f.clock.Set(dec22)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(1))
	assert.ErrorIs(t, err, domain.ErrMarketMatured)

	f.clock.Set(dec22 + 3600)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(1))
	assert.ErrorIs(t, err, domain.ErrMarketMatured)
}

func TestMintZeroDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, uint256.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestMintDebtCap(t *testing.T) {
	// Two consecutive mints of 50,000 and 50,001 against a 100,000 cap: the
	// second fails and the first stands unchanged.
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(50_000))
	require.NoError(t, err)

	_, err = f.ledger.Mint(ctx, bob, usdc, dec22, wad(50_001))
	assert.ErrorIs(t, err, domain.ErrDebtCapExceeded)

	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(50_000), m.TotalDeposited)
	assert.True(t, f.ledger.BalanceOf(usdc, dec22, bob).IsZero())
	assert.Equal(t, 1, f.custodian.ins)

	// Filling the cap exactly is allowed.
	_, err = f.ledger.Mint(ctx, bob, usdc, dec22, wad(50_000))
	require.NoError(t, err)
	m, _ = f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(100_000), m.TotalDeposited)
}

func TestMintTransferFailureRetainsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	f.custodian.failIn = errors.New("rpc: connection refused")
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.True(t, m.TotalDeposited.IsZero())
	assert.True(t, m.TotalBondSupply.IsZero())
	assert.True(t, f.ledger.BalanceOf(usdc, dec22, alice).IsZero())
	assert.Equal(t, []domain.EventKind{domain.EventMarketCreated}, f.sink.kinds())
}

func TestRedeemBeforeMaturity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	require.NoError(t, err)

	_, err = f.ledger.Redeem(ctx, alice, usdc, dec22, wad(100))
	assert.ErrorIs(t, err, domain.ErrMarketNotMatured)
	assert.Equal(t, wad(100), f.ledger.BalanceOf(usdc, dec22, alice))
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	require.NoError(t, err)

	f.clock.Set(dec22 + 1)

	_, err = f.ledger.Redeem(ctx, alice, usdc, dec22, wad(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Bob never minted at all.
	_, err = f.ledger.Redeem(ctx, bob, usdc, dec22, wad(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(100), m.TotalBondSupply)
}

func TestRedeemMarketNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Redeem(context.Background(), alice, usdc, dec22, wad(1))
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestRedeemZeroAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	f.clock.Set(dec22 + 1)

	_, err = f.ledger.Redeem(ctx, alice, usdc, dec22, uint256.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRedeemTransferFailureRetainsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	require.NoError(t, err)

	f.clock.Set(dec22 + 1)
	f.custodian.failOut = errors.New("rpc: receipt status 0")

	_, err = f.ledger.Redeem(ctx, alice, usdc, dec22, wad(100))
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(100), m.TotalBondSupply)
	assert.Equal(t, wad(100), f.ledger.BalanceOf(usdc, dec22, alice))
}

func TestTransferAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.TransferAdmin(ctx, alice, bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, admin, f.ledger.Admin())

	require.NoError(t, f.ledger.TransferAdmin(ctx, admin, alice))
	assert.Equal(t, alice, f.ledger.Admin())

	// The old admin lost the capability.
	_, err = f.ledger.CreateMarket(ctx, admin, usdcParams())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.CreateMarket(ctx, alice, usdcParams())
	require.NoError(t, err)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)
	_, err = f.ledger.Mint(ctx, alice, usdc, dec22, wad(95))
	require.NoError(t, err)

	markets := f.ledger.Markets()
	balances := f.ledger.Balances()

	restored := New(admin, f.clock, f.custodian, nil)
	snapshot := make([]domain.Market, len(markets))
	for i, m := range markets {
		snapshot[i] = *m
	}
	require.NoError(t, restored.Restore(snapshot, balances))

	m, ok := restored.GetMarket(usdc, dec22)
	require.True(t, ok)
	assert.Equal(t, wad(95), m.TotalDeposited)
	assert.Equal(t, wad(100), restored.BalanceOf(usdc, dec22, alice))
	assert.Equal(t, f.ledger.MarketKeys(), restored.MarketKeys())
}

func TestConcurrentMintsRespectCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.CreateMarket(ctx, admin, usdcParams())
	require.NoError(t, err)

	// 40 goroutines each try to deposit 10,000 into a 100,000 cap. Exactly
	// ten succeed regardless of interleaving.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Mint(ctx, alice, usdc, dec22, wad(10_000)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	m, _ := f.ledger.GetMarket(usdc, dec22)
	assert.Equal(t, wad(100_000), m.TotalDeposited)
	assert.True(t, m.TotalDeposited.Cmp(m.MaximumDebt) <= 0)
}
