package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// AdminService defines what the admin handler requires from the service
// layer.
type AdminService interface {
	Admin(ctx context.Context) common.Address
	Transfer(ctx context.Context, caller, newAdmin common.Address) error
}

// AdminHandler serves the admin capability endpoints.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// GetAdmin returns the current admin identity.
// GET /api/admin
func (h *AdminHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"admin": h.admin.Admin(r.Context()).Hex(),
	})
}

// transferAdminRequest is the POST /api/admin/transfer body.
type transferAdminRequest struct {
	Caller   string `json:"caller"`
	NewAdmin string `json:"new_admin"`
}

// TransferAdmin hands the admin capability to a new identity. Only the
// current admin may call it.
// POST /api/admin/transfer
func (h *AdminHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req transferAdminRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseCaller(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(req.NewAdmin) {
		writeError(w, http.StatusBadRequest, "invalid new_admin address")
		return
	}
	newAdmin := common.HexToAddress(req.NewAdmin)

	if err := h.admin.Transfer(r.Context(), caller, newAdmin); err != nil {
		h.logger.WarnContext(r.Context(), "handler: admin transfer failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"admin": newAdmin.Hex()})
}
