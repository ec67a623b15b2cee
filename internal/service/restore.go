package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
)

// Restore loads the persisted markets and balances into an empty ledger.
// Called once at boot, before the server starts accepting operations.
func Restore(ctx context.Context, l *ledger.Ledger, markets domain.MarketStore, balances domain.BalanceStore, logger *slog.Logger) error {
	ms, err := markets.List(ctx)
	if err != nil {
		return fmt.Errorf("restore: list markets: %w", err)
	}
	bs, err := balances.List(ctx)
	if err != nil {
		return fmt.Errorf("restore: list balances: %w", err)
	}

	if err := l.Restore(ms, bs); err != nil {
		return fmt.Errorf("restore: load ledger: %w", err)
	}

	logger.InfoContext(ctx, "ledger restored",
		slog.Int("markets", len(ms)),
		slog.Int("balances", len(bs)),
	)
	return nil
}
