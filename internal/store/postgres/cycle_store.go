package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL. Decimal columns
// travel as text so no precision is lost in either direction.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a new CycleStore backed by the given connection pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Insert records a completed cycle. Re-inserting the same id is a no-op.
func (s *CycleStore) Insert(ctx context.Context, c domain.CompletedCycle) error {
	const query = `
		INSERT INTO completed_cycles (id, pair, profit, sell_price, quantity, completed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Pair, c.Profit.String(), c.SellPrice.String(), c.Quantity.String(), c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle %s: %w", c.ID, err)
	}
	return nil
}

// ListRecent returns the cycles for pair, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.CompletedCycle, error) {
	var q listQuery
	q.where("pair = ?", pair)
	query, args := q.build(
		`SELECT id, pair, profit::text, sell_price::text, quantity::text, completed_at FROM completed_cycles`,
		"completed_at", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles: %w", err)
	}
	defer rows.Close()

	var out []domain.CompletedCycle
	for rows.Next() {
		var c domain.CompletedCycle
		var profit, price, quantity string
		if err := rows.Scan(&c.ID, &c.Pair, &profit, &price, &quantity, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan cycle: %w", err)
		}
		if c.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("postgres: parse profit: %w", err)
		}
		if c.SellPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse sell_price: %w", err)
		}
		if c.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("postgres: parse quantity: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list cycles rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CycleStore = (*CycleStore)(nil)
