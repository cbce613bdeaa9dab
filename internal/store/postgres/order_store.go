package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Orders are keyed
// by client ID so retried intents resolve to their original row.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			client_id, venue_id, market_id, trader, side, outcome,
			price_bps, amount_units, filled_units, nonce_ms, expiry_unix,
			status, signature, signal, closing, created_at, submitted_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ClientID, o.ID, o.MarketID, o.Trader,
		string(o.Side), string(o.Outcome),
		o.PriceBps, o.AmountUnits, o.FilledUnits,
		o.NonceMs, o.ExpiryUnix,
		string(o.Status), o.Signature, string(o.Signal), o.Closing,
		o.CreatedAt, o.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ClientID, err)
	}
	return nil
}

// UpdateStatus changes an order's status, stamping the submission time when
// the order reaches the venue.
func (s *OrderStore) UpdateStatus(ctx context.Context, clientID string, status domain.OrderStatus) error {
	var query string
	if status == domain.OrderStatusSubmitted {
		query = `UPDATE orders SET status = $1, submitted_at = NOW(), updated_at = NOW() WHERE client_id = $2`
	} else {
		query = `UPDATE orders SET status = $1, updated_at = NOW() WHERE client_id = $2`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), clientID)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %s: %w", clientID, domain.ErrNotFound)
	}
	return nil
}

// SetVenueID records the venue-assigned identifier after a submission is
// accepted.
func (s *OrderStore) SetVenueID(ctx context.Context, clientID, venueID string) error {
	const query = `UPDATE orders SET venue_id = $1, submitted_at = NOW(), updated_at = NOW() WHERE client_id = $2`

	tag, err := s.pool.Exec(ctx, query, venueID, clientID)
	if err != nil {
		return fmt.Errorf("postgres: set venue id %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %s: %w", clientID, domain.ErrNotFound)
	}
	return nil
}

// RecordFill updates the filled amount and status together.
func (s *OrderStore) RecordFill(ctx context.Context, clientID string, filledUnits int64, status domain.OrderStatus) error {
	const query = `UPDATE orders SET filled_units = $1, status = $2, updated_at = NOW() WHERE client_id = $3`

	tag, err := s.pool.Exec(ctx, query, filledUnits, string(status), clientID)
	if err != nil {
		return fmt.Errorf("postgres: record fill %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %s: %w", clientID, domain.ErrNotFound)
	}
	return nil
}

// GetByClientID returns one order, or ErrNotFound.
func (s *OrderStore) GetByClientID(ctx context.Context, clientID string) (domain.Order, error) {
	const query = selectColumns + ` WHERE client_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: order %s: %w", clientID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", clientID, err)
	}
	return o, nil
}

// ListLive returns the market's orders still in a live status.
func (s *OrderStore) ListLive(ctx context.Context, marketID uint64) ([]domain.Order, error) {
	const query = selectColumns + `
		WHERE market_id = $1
		  AND status IN ('planned', 'signed', 'submitted', 'partially_filled')
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list live orders for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT client_id, COALESCE(venue_id, ''), market_id, trader, side, outcome,
	       price_bps, amount_units, filled_units, nonce_ms, expiry_unix,
	       status, signature, signal, closing, created_at, submitted_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                 domain.Order
		side, outcome, status, signalKind string
	)
	err := row.Scan(
		&o.ClientID, &o.ID, &o.MarketID, &o.Trader, &side, &outcome,
		&o.PriceBps, &o.AmountUnits, &o.FilledUnits, &o.NonceMs, &o.ExpiryUnix,
		&status, &o.Signature, &signalKind, &o.Closing, &o.CreatedAt, &o.SubmittedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Outcome = domain.Outcome(outcome)
	o.Status = domain.OrderStatus(status)
	o.Signal = domain.SignalKind(signalKind)
	return o, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
