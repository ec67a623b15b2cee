package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `underlying, maturity, decimals, maximum_debt, price,
	market_name, token_name, symbol, total_deposited, total_bond_supply, created_at`

// Upsert inserts or updates one market record. Only the running totals can
// legitimately change after creation; the upsert writes them all the same so
// mirroring stays idempotent.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			underlying, maturity, decimals, maximum_debt, price,
			market_name, token_name, symbol,
			total_deposited, total_bond_supply, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (underlying, maturity) DO UPDATE SET
			total_deposited   = EXCLUDED.total_deposited,
			total_bond_supply = EXCLUDED.total_bond_supply`

	_, err := s.pool.Exec(ctx, query,
		addrText(m.Underlying), m.Maturity, int16(m.Decimals),
		amountText(m.MaximumDebt), amountText(m.Price),
		m.MarketName, m.TokenName, m.Symbol,
		amountText(m.TotalDeposited), amountText(m.TotalBondSupply),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Key(), err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		underlying string
		decimals   int16
		maxDebt    string
		price      string
		deposited  string
		supply     string
	)
	err := row.Scan(
		&underlying, &m.Maturity, &decimals, &maxDebt, &price,
		&m.MarketName, &m.TokenName, &m.Symbol,
		&deposited, &supply, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Underlying = common.HexToAddress(underlying)
	m.Decimals = uint8(decimals)
	if m.MaximumDebt, err = amountFromText(maxDebt); err != nil {
		return domain.Market{}, err
	}
	if m.Price, err = amountFromText(price); err != nil {
		return domain.Market{}, err
	}
	if m.TotalDeposited, err = amountFromText(deposited); err != nil {
		return domain.Market{}, err
	}
	if m.TotalBondSupply, err = amountFromText(supply); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Get retrieves a market by key. Returns domain.ErrNotFound when absent.
func (s *MarketStore) Get(ctx context.Context, key domain.MarketKey) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE underlying = $1 AND maturity = $2`,
		addrText(key.Underlying), key.Maturity)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", key, err)
	}
	return m, nil
}

// List returns every market in insertion order.
func (s *MarketStore) List(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
