package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
)

// MarketService defines what the market handler requires from the service
// layer. Declared locally so the handler package does not depend on the
// concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, caller common.Address, p ledger.CreateMarketParams) (domain.MarketKey, error)
	Get(ctx context.Context, underlying common.Address, maturity int64) (domain.Market, error)
	List(ctx context.Context) []*domain.Market
	Keys(ctx context.Context) []domain.MarketKey
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the POST /api/markets body. Amounts are decimal
// strings in 1e18 base units.
type createMarketRequest struct {
	Caller      string `json:"caller"`
	Underlying  string `json:"underlying"`
	Maturity    int64  `json:"maturity"`
	Decimals    uint8  `json:"decimals"`
	MaximumDebt string `json:"maximum_debt"`
	Price       string `json:"price"`
	MarketName  string `json:"market_name"`
	TokenName   string `json:"token_name"`
	Symbol      string `json:"symbol"`
}

// CreateMarket opens a new bond market. Admin only.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseCaller(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(req.Underlying) {
		writeError(w, http.StatusBadRequest, "invalid underlying address")
		return
	}
	maxDebt, err := parseAmount(req.MaximumDebt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.markets.Create(r.Context(), caller, ledger.CreateMarketParams{
		Underlying:  common.HexToAddress(req.Underlying),
		Maturity:    req.Maturity,
		Decimals:    req.Decimals,
		MaximumDebt: maxDebt,
		Price:       price,
		MarketName:  req.MarketName,
		TokenName:   req.TokenName,
		Symbol:      req.Symbol,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create market failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key.String()})
}

// ListMarkets returns every market in creation order.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"total":   len(markets),
	})
}

// ListKeys returns every market key in creation order.
// GET /api/markets/keys
func (h *MarketHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys := h.markets.Keys(r.Context())
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// GetMarket returns a single market by (underlying, maturity).
// GET /api/markets/{underlying}/{maturity}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	underlying, err := pathAddress(r, "underlying")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maturity, err := pathMaturity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.markets.Get(r.Context(), underlying, maturity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
