package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
)

var (
	testAdmin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	testAlice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	testUSDC  = common.HexToAddress("0x4DBCdF9B62e891a7cec5A2568C3F4FAF9E8Abe2b")
)

const testMaturity = int64(1672547973)

// fakeMarketService scripts Create/Get results.
type fakeMarketService struct {
	createErr error
	getErr    error
	market    domain.Market
	created   *ledger.CreateMarketParams
}

func (f *fakeMarketService) Create(_ context.Context, _ common.Address, p ledger.CreateMarketParams) (domain.MarketKey, error) {
	if f.createErr != nil {
		return domain.MarketKey{}, f.createErr
	}
	f.created = &p
	return domain.MarketKey{Underlying: p.Underlying, Maturity: p.Maturity}, nil
}

func (f *fakeMarketService) Get(context.Context, common.Address, int64) (domain.Market, error) {
	if f.getErr != nil {
		return domain.Market{}, f.getErr
	}
	return f.market, nil
}

func (f *fakeMarketService) List(context.Context) []*domain.Market   { return nil }
func (f *fakeMarketService) Keys(context.Context) []domain.MarketKey { return nil }

// fakeBondService scripts Mint/Redeem results.
type fakeBondService struct {
	mintErr   error
	redeemErr error
	bonds     *uint256.Int
	out       *uint256.Int
	balance   *uint256.Int
}

func (f *fakeBondService) Mint(context.Context, common.Address, common.Address, int64, *uint256.Int) (*uint256.Int, error) {
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	return f.bonds, nil
}

func (f *fakeBondService) Redeem(context.Context, common.Address, common.Address, int64, *uint256.Int) (*uint256.Int, error) {
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	return f.out, nil
}

func (f *fakeBondService) BalanceOf(context.Context, common.Address, int64, common.Address) *uint256.Int {
	if f.balance == nil {
		return new(uint256.Int)
	}
	return f.balance
}

func (f *fakeBondService) Balances(context.Context) []domain.BondBalance { return nil }

// fakeAdminService scripts Transfer results.
type fakeAdminService struct {
	admin       common.Address
	transferErr error
}

func (f *fakeAdminService) Admin(context.Context) common.Address { return f.admin }

func (f *fakeAdminService) Transfer(context.Context, common.Address, common.Address) error {
	return f.transferErr
}

// newTestMux registers the handlers under the same route patterns the server
// uses, so path parameters resolve.
func newTestMux(markets *fakeMarketService, bonds *fakeBondService, admin *fakeAdminService) *http.ServeMux {
	logger := slog.Default()
	mux := http.NewServeMux()

	mh := NewMarketHandler(markets, logger)
	mux.HandleFunc("POST /api/markets", mh.CreateMarket)
	mux.HandleFunc("GET /api/markets/{underlying}/{maturity}", mh.GetMarket)

	bh := NewBondHandler(bonds, logger)
	mux.HandleFunc("POST /api/markets/{underlying}/{maturity}/mint", bh.Mint)
	mux.HandleFunc("POST /api/markets/{underlying}/{maturity}/redeem", bh.Redeem)
	mux.HandleFunc("GET /api/markets/{underlying}/{maturity}/balances/{holder}", bh.GetBalance)

	ah := NewAdminHandler(admin, logger)
	mux.HandleFunc("GET /api/admin", ah.GetAdmin)
	mux.HandleFunc("POST /api/admin/transfer", ah.TransferAdmin)

	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func marketPath(suffix string) string {
	return "/api/markets/" + strings.ToLower(testUSDC.Hex()) + "/1672547973" + suffix
}

func TestCreateMarketSuccess(t *testing.T) {
	markets := &fakeMarketService{}
	mux := newTestMux(markets, &fakeBondService{}, &fakeAdminService{})

	body := `{
		"caller": "` + testAdmin.Hex() + `",
		"underlying": "` + testUSDC.Hex() + `",
		"maturity": 1672547973,
		"decimals": 6,
		"maximum_debt": "100000000000000000000000",
		"price": "950000000000000000",
		"market_name": "0xKernel-Dec-22-Debt",
		"token_name": "0xKernel-Dec-22-Debt",
		"symbol": "KERN-DEC"
	}`
	rec := doRequest(t, mux, http.MethodPost, "/api/markets", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "0x4dbcdf9b62e891a7cec5a2568c3f4faf9e8abe2b:1672547973")

	require.NotNil(t, markets.created)
	assert.Equal(t, uint8(6), markets.created.Decimals)
	assert.Equal(t, "950000000000000000", markets.created.Price.Dec())
}

func TestCreateMarketErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"duplicate", domain.ErrDuplicateMarket, http.StatusConflict},
		{"invalid params", domain.ErrInvalidParameters, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&fakeMarketService{createErr: tc.err}, &fakeBondService{}, &fakeAdminService{})
			body := `{"caller":"` + testAlice.Hex() + `","underlying":"` + testUSDC.Hex() + `",` +
				`"maturity":1672547973,"maximum_debt":"1","price":"1"}`
			rec := doRequest(t, mux, http.MethodPost, "/api/markets", body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCreateMarketRejectsBadBody(t *testing.T) {
	mux := newTestMux(&fakeMarketService{}, &fakeBondService{}, &fakeAdminService{})

	rec := doRequest(t, mux, http.MethodPost, "/api/markets", `{"caller":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/markets", `{"unknown_field":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMarketNotFound(t *testing.T) {
	mux := newTestMux(&fakeMarketService{getErr: domain.ErrMarketNotFound}, &fakeBondService{}, &fakeAdminService{})

	rec := doRequest(t, mux, http.MethodGet, marketPath(""), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMarketRejectsBadPath(t *testing.T) {
	mux := newTestMux(&fakeMarketService{}, &fakeBondService{}, &fakeAdminService{})

	rec := doRequest(t, mux, http.MethodGet, "/api/markets/nothex/1672547973", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/markets/"+testUSDC.Hex()+"/zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMintSuccess(t *testing.T) {
	bonds := &fakeBondService{bonds: uint256.MustFromDecimal("100000000000000000000")}
	mux := newTestMux(&fakeMarketService{}, bonds, &fakeAdminService{})

	body := `{"caller":"` + testAlice.Hex() + `","amount":"95000000000000000000"}`
	rec := doRequest(t, mux, http.MethodPost, marketPath("/mint"), body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bonds":"100000000000000000000"`)
	assert.Contains(t, rec.Body.String(), `"deposit":"95000000000000000000"`)
}

func TestMintErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"market not found", domain.ErrMarketNotFound, http.StatusNotFound},
		{"matured", domain.ErrMarketMatured, http.StatusConflict},
		{"debt cap", domain.ErrDebtCapExceeded, http.StatusConflict},
		{"zero amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"transfer failed", domain.ErrTransferFailed, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&fakeMarketService{}, &fakeBondService{mintErr: tc.err}, &fakeAdminService{})
			body := `{"caller":"` + testAlice.Hex() + `","amount":"1"}`
			rec := doRequest(t, mux, http.MethodPost, marketPath("/mint"), body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRedeemErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not matured", domain.ErrMarketNotMatured, http.StatusConflict},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusConflict},
		{"insufficient supply", domain.ErrInsufficientSupply, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&fakeMarketService{}, &fakeBondService{redeemErr: tc.err}, &fakeAdminService{})
			body := `{"caller":"` + testAlice.Hex() + `","amount":"1"}`
			rec := doRequest(t, mux, http.MethodPost, marketPath("/redeem"), body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMintRejectsBadAmount(t *testing.T) {
	mux := newTestMux(&fakeMarketService{}, &fakeBondService{}, &fakeAdminService{})

	for _, amount := range []string{"", "-5", "1.5", "abc"} {
		body := `{"caller":"` + testAlice.Hex() + `","amount":"` + amount + `"}`
		rec := doRequest(t, mux, http.MethodPost, marketPath("/mint"), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount %q", amount)
	}
}

func TestGetBalance(t *testing.T) {
	bonds := &fakeBondService{balance: uint256.NewInt(42)}
	mux := newTestMux(&fakeMarketService{}, bonds, &fakeAdminService{})

	rec := doRequest(t, mux, http.MethodGet, marketPath("/balances/"+testAlice.Hex()), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":"42"`)
}

func TestAdminEndpoints(t *testing.T) {
	admin := &fakeAdminService{admin: testAdmin}
	mux := newTestMux(&fakeMarketService{}, &fakeBondService{}, admin)

	rec := doRequest(t, mux, http.MethodGet, "/api/admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testAdmin.Hex())

	body := `{"caller":"` + testAdmin.Hex() + `","new_admin":"` + testAlice.Hex() + `"}`
	rec = doRequest(t, mux, http.MethodPost, "/api/admin/transfer", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	admin.transferErr = domain.ErrUnauthorized
	rec = doRequest(t, mux, http.MethodPost, "/api/admin/transfer", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
