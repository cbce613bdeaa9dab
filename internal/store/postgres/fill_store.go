package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Record inserts one confirmed fill.
func (s *FillStore) Record(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (
			fill_id, order_id, market_id, side, outcome,
			price_bps, amount_units, fee_units, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.OrderID, f.MarketID,
		string(f.Side), string(f.Outcome),
		f.PriceBps, f.AmountUnits, f.FeeUnits, f.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record fill for order %s: %w", f.OrderID, err)
	}
	return nil
}

// ListByMarket returns a market's fills, oldest first.
func (s *FillStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Fill, error) {
	const query = `
		SELECT fill_id, order_id, market_id, side, outcome,
		       price_bps, amount_units, fee_units, filled_at
		FROM fills
		WHERE market_id = $1
		ORDER BY filled_at`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Fill
	for rows.Next() {
		var (
			f             domain.Fill
			side, outcome string
		)
		if err := rows.Scan(
			&f.ID, &f.OrderID, &f.MarketID, &side, &outcome,
			&f.PriceBps, &f.AmountUnits, &f.FeeUnits, &f.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		f.Outcome = domain.Outcome(outcome)
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ domain.FillStore = (*FillStore)(nil)
