package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Set writes the holder's balance for a market; a zero amount deletes the
// row so fully redeemed positions leave no residue.
func (s *BalanceStore) Set(ctx context.Context, key domain.MarketKey, holder common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM bond_balances WHERE underlying = $1 AND maturity = $2 AND holder = $3`,
			addrText(key.Underlying), key.Maturity, addrText(holder))
		if err != nil {
			return fmt.Errorf("postgres: clear balance %s/%s: %w", key, addrText(holder), err)
		}
		return nil
	}

	const query = `
		INSERT INTO bond_balances (underlying, maturity, holder, amount, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (underlying, maturity, holder) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		addrText(key.Underlying), key.Maturity, addrText(holder), amountText(amount))
	if err != nil {
		return fmt.Errorf("postgres: set balance %s/%s: %w", key, addrText(holder), err)
	}
	return nil
}

// List returns every stored balance.
func (s *BalanceStore) List(ctx context.Context) ([]domain.BondBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT underlying, maturity, holder, amount FROM bond_balances`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.BondBalance
	for rows.Next() {
		var (
			underlying string
			maturity   int64
			holder     string
			amount     string
		)
		if err := rows.Scan(&underlying, &maturity, &holder, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		parsed, err := amountFromText(amount)
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.BondBalance{
			Key: domain.MarketKey{
				Underlying: common.HexToAddress(underlying),
				Maturity:   maturity,
			},
			Holder: common.HexToAddress(holder),
			Amount: parsed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances rows: %w", err)
	}
	return balances, nil
}

// Compile-time interface check.
var _ domain.BalanceStore = (*BalanceStore)(nil)
