package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondable/internal/ledger"
)

// AdminService exposes the admin capability: reading the current admin and
// handing it to a new identity.
type AdminService struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(l *ledger.Ledger, logger *slog.Logger) *AdminService {
	return &AdminService{ledger: l, logger: logger}
}

// Admin returns the current admin identity.
func (s *AdminService) Admin(ctx context.Context) common.Address {
	return s.ledger.Admin()
}

// Transfer hands the admin capability to newAdmin. Only the current admin may
// call it; the change takes effect for all subsequent operations.
func (s *AdminService) Transfer(ctx context.Context, caller, newAdmin common.Address) error {
	if err := s.ledger.TransferAdmin(ctx, caller, newAdmin); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "admin_service: admin transferred",
		slog.String("from", caller.Hex()),
		slog.String("to", newAdmin.Hex()),
	)
	return nil
}
