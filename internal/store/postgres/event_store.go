package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The journal is
// append-only; per-key read order follows the insertion sequence, which
// matches ledger commit order.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append persists one ledger event.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO ledger_events (
			id, kind, underlying, maturity, caller,
			deposit, bonds, underlying_amount, new_admin, params, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var underlying *string
	var maturity *int64
	if ev.Kind != domain.EventAdminTransferred {
		u := addrText(ev.Key.Underlying)
		underlying = &u
		maturity = &ev.Key.Maturity
	}
	var newAdmin *string
	if ev.NewAdmin != nil {
		a := addrText(*ev.NewAdmin)
		newAdmin = &a
	}
	var params []byte
	if ev.Params != nil {
		var err error
		if params, err = json.Marshal(ev.Params); err != nil {
			return fmt.Errorf("postgres: encode event params %s: %w", ev.ID, err)
		}
	}

	_, err := s.pool.Exec(ctx, query,
		ev.ID, string(ev.Kind), underlying, maturity, addrText(ev.Caller),
		nullableAmount(ev.Deposit), nullableAmount(ev.Bonds),
		nullableAmount(ev.Underlying), newAdmin, params, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

const eventCols = `id, kind, underlying, maturity, caller,
	deposit, bonds, underlying_amount, new_admin, params, at`

// List returns events across all markets with pagination and time filtering,
// oldest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM ledger_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY seq"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.query(ctx, query, args)
}

// ListByKey returns one market's events in commit order.
func (s *EventStore) ListByKey(ctx context.Context, key domain.MarketKey, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM ledger_events
		WHERE underlying = $1 AND maturity = $2 ORDER BY seq`
	args := []any{addrText(key.Underlying), key.Maturity}
	argIdx := 3

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.query(ctx, query, args)
}

func (s *EventStore) query(ctx context.Context, query string, args []any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		ev         domain.Event
		kind       string
		underlying *string
		maturity   *int64
		caller     string
		deposit    *string
		bonds      *string
		out        *string
		newAdmin   *string
		params     []byte
	)
	err := row.Scan(&ev.ID, &kind, &underlying, &maturity, &caller,
		&deposit, &bonds, &out, &newAdmin, &params, &ev.At)
	if err != nil {
		return domain.Event{}, err
	}

	ev.Kind = domain.EventKind(kind)
	ev.Caller = common.HexToAddress(caller)
	if underlying != nil && maturity != nil {
		ev.Key = domain.MarketKey{
			Underlying: common.HexToAddress(*underlying),
			Maturity:   *maturity,
		}
	}
	if deposit != nil {
		if ev.Deposit, err = amountFromText(*deposit); err != nil {
			return domain.Event{}, err
		}
	}
	if bonds != nil {
		if ev.Bonds, err = amountFromText(*bonds); err != nil {
			return domain.Event{}, err
		}
	}
	if out != nil {
		if ev.Underlying, err = amountFromText(*out); err != nil {
			return domain.Event{}, err
		}
	}
	if newAdmin != nil {
		a := common.HexToAddress(*newAdmin)
		ev.NewAdmin = &a
	}
	if len(params) > 0 {
		ev.Params = &domain.MarketParams{}
		if err := json.Unmarshal(params, ev.Params); err != nil {
			return domain.Event{}, fmt.Errorf("decode event params: %w", err)
		}
	}
	return ev, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
