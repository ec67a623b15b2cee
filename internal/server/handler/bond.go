package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// BondService defines what the bond handler requires from the service layer.
type BondService interface {
	Mint(ctx context.Context, caller, underlying common.Address, maturity int64, deposit *uint256.Int) (*uint256.Int, error)
	Redeem(ctx context.Context, caller, underlying common.Address, maturity int64, bonds *uint256.Int) (*uint256.Int, error)
	BalanceOf(ctx context.Context, underlying common.Address, maturity int64, holder common.Address) *uint256.Int
	Balances(ctx context.Context) []domain.BondBalance
}

// BondHandler serves minting, redemption, and balance endpoints.
type BondHandler struct {
	bonds  BondService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler.
func NewBondHandler(bonds BondService, logger *slog.Logger) *BondHandler {
	return &BondHandler{
		bonds:  bonds,
		logger: logger,
	}
}

// bondRequest is the body for mint and redeem. Amount is a decimal string in
// 1e18 base units: the deposit for mint, the bond amount for redeem.
type bondRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// Mint deposits underlying into a market and credits the caller with bonds.
// POST /api/markets/{underlying}/{maturity}/mint
func (h *BondHandler) Mint(w http.ResponseWriter, r *http.Request) {
	underlying, maturity, caller, amount, ok := h.parseBondRequest(w, r)
	if !ok {
		return
	}

	bonds, err := h.bonds.Mint(r.Context(), caller, underlying, maturity, amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: mint failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"deposit": amount.Dec(),
		"bonds":   bonds.Dec(),
	})
}

// Redeem burns the caller's bonds in a matured market and releases the
// underlying at par.
// POST /api/markets/{underlying}/{maturity}/redeem
func (h *BondHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	underlying, maturity, caller, amount, ok := h.parseBondRequest(w, r)
	if !ok {
		return
	}

	out, err := h.bonds.Redeem(r.Context(), caller, underlying, maturity, amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: redeem failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"bonds":      amount.Dec(),
		"underlying": out.Dec(),
	})
}

// GetBalance returns a holder's bond balance for one market. Unknown holders
// have a zero balance.
// GET /api/markets/{underlying}/{maturity}/balances/{holder}
func (h *BondHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
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
	holder, err := pathAddress(r, "holder")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance := h.bonds.BalanceOf(r.Context(), underlying, maturity, holder)
	writeJSON(w, http.StatusOK, map[string]string{
		"holder":  holder.Hex(),
		"balance": balance.Dec(),
	})
}

// ListBalances returns every non-zero bond balance across all markets.
// GET /api/balances
func (h *BondHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances := h.bonds.Balances(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"balances": balances,
		"total":    len(balances),
	})
}

// parseBondRequest extracts the market key from the path and the caller and
// amount from the body, writing the error response itself on failure.
func (h *BondHandler) parseBondRequest(w http.ResponseWriter, r *http.Request) (underlying common.Address, maturity int64, caller common.Address, amount *uint256.Int, ok bool) {
	underlying, err := pathAddress(r, "underlying")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maturity, err = pathMaturity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req bondRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err = parseCaller(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err = parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	return underlying, maturity, caller, amount, true
}
