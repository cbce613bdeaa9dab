// Package orders owns the order lifecycle state machine: plan, sign, submit,
// track to terminal. No other component mutates order status.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/cardclob/blackjackbot/internal/crypto"
	"github.com/cardclob/blackjackbot/internal/domain"
)

// Manager turns approved intents into signed, submitted, tracked orders.
// A per-market mutex serializes mutating calls so at most one submit or
// cancel is in flight per market at a time.
type Manager struct {
	signer *crypto.Signer
	api    domain.OrderAPI
	store  domain.OrderStore
	expiry time.Duration
	logger *slog.Logger

	mu          sync.Mutex
	marketLocks map[uint64]*sync.Mutex
}

// NewManager creates a Manager. expiry is how long a signed order remains
// valid at the venue.
func NewManager(signer *crypto.Signer, api domain.OrderAPI, store domain.OrderStore, expiry time.Duration, logger *slog.Logger) *Manager {
	if expiry <= 0 {
		expiry = 60 * time.Second
	}
	return &Manager{
		signer:      signer,
		api:         api,
		store:       store,
		expiry:      expiry,
		logger:      logger.With(slog.String("component", "orders")),
		marketLocks: make(map[uint64]*sync.Mutex),
	}
}

// Execute runs one intent through plan, sign, and submit, and returns the
// resulting order. An intent re-executed after a dropped response resolves
// to the existing order instead of creating a duplicate: the intent ID is
// the order's client ID.
func (m *Manager) Execute(ctx context.Context, intent domain.OrderIntent) (domain.Order, error) {
	unlock := m.lockMarket(intent.MarketID)
	defer unlock()

	// Idempotency: a prior attempt for this intent may already be tracked.
	if existing, err := m.store.GetByClientID(ctx, intent.ID); err == nil {
		return m.recoverExisting(ctx, existing)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("orders: lookup intent %s: %w", intent.ID, err)
	}

	order := m.plan(intent)

	signed, err := m.sign(order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: %w: %v", domain.ErrSigningFailed, err)
	}
	order = signed

	if err := m.store.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("orders: persist order %s: %w", order.ClientID, err)
	}

	return m.submit(ctx, order)
}

// plan builds the order record from the intent. The client ID is the intent
// ID so retries are idempotent; the nonce is fixed at planning time so the
// signing payload is reproducible byte for byte.
func (m *Manager) plan(intent domain.OrderIntent) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ClientID:    intent.ID,
		MarketID:    intent.MarketID,
		Trader:      m.signer.Address().Hex(),
		Side:        intent.Side,
		Outcome:     intent.Outcome,
		PriceBps:    intent.PriceBps,
		AmountUnits: intent.AmountUnits,
		NonceMs:     now.UnixMilli(),
		ExpiryUnix:  now.Add(m.expiry).Unix(),
		Status:      domain.OrderStatusPlanned,
		Signal:      intent.Signal,
		Closing:     intent.Closing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// sign produces the EIP-712 signature over the order's typed message.
func (m *Manager) sign(o domain.Order) (domain.Order, error) {
	msg := crypto.OrderMessage{
		Trader:   o.Trader,
		MarketID: o.MarketID,
		IsBuy:    o.Side == domain.OrderSideBuy,
		IsYes:    o.Outcome == domain.OutcomeYes,
		PriceBps: uint64(o.PriceBps),
		Amount:   big.NewInt(o.AmountUnits),
		Nonce:    uint64(o.NonceMs),
		Expiry:   uint64(o.ExpiryUnix),
	}
	sig, err := m.signer.SignOrder(msg)
	if err != nil {
		return domain.Order{}, err
	}
	o.Signature = sig
	o.Status = domain.OrderStatusSigned
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// submit sends the signed order. Venue rejections are terminal; transport
// failures leave the order signed so the next cycle recovers it via status
// query rather than a blind resubmit.
func (m *Manager) submit(ctx context.Context, o domain.Order) (domain.Order, error) {
	venueID, status, err := m.api.SubmitOrder(ctx, o)
	now := time.Now().UTC()
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			o.Status = domain.OrderStatusRejected
			o.UpdatedAt = now
			if serr := m.store.UpdateStatus(ctx, o.ClientID, o.Status); serr != nil {
				m.logger.Error("persist rejection failed", slog.String("client_id", o.ClientID), slog.String("error", serr.Error()))
			}
			return o, err
		}
		// Transport failure: the venue may or may not have the order. Leave
		// it signed; recoverExisting resolves it on the next attempt.
		return o, fmt.Errorf("orders: submit %s: %w", o.ClientID, err)
	}

	o.ID = venueID
	o.Status = status
	o.SubmittedAt = &now
	o.UpdatedAt = now
	if err := m.store.SetVenueID(ctx, o.ClientID, venueID); err != nil {
		m.logger.Error("persist venue id failed", slog.String("client_id", o.ClientID), slog.String("error", err.Error()))
	}
	if err := m.store.UpdateStatus(ctx, o.ClientID, o.Status); err != nil {
		m.logger.Error("persist status failed", slog.String("client_id", o.ClientID), slog.String("error", err.Error()))
	}

	m.logger.Info("order submitted",
		slog.String("client_id", o.ClientID),
		slog.String("venue_id", venueID),
		slog.Uint64("market_id", o.MarketID),
		slog.String("side", string(o.Side)),
		slog.String("outcome", string(o.Outcome)),
		slog.Int64("price_bps", o.PriceBps),
		slog.Int64("amount_units", o.AmountUnits))
	return o, nil
}

// recoverExisting resolves a retried intent against its prior order. Orders
// with a venue ID refresh from a status query; orders that never reached the
// venue resubmit the identical signed payload.
func (m *Manager) recoverExisting(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		if o.Status == domain.OrderStatusPlanned || o.Status == domain.OrderStatusSigned {
			return m.submit(ctx, o)
		}
		return o, nil
	}
	return m.syncLocked(ctx, o)
}

// SyncStatus refreshes one order from the venue and persists any change.
func (m *Manager) SyncStatus(ctx context.Context, o domain.Order) (domain.Order, error) {
	unlock := m.lockMarket(o.MarketID)
	defer unlock()
	return m.syncLocked(ctx, o)
}

func (m *Manager) syncLocked(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.ID == "" || o.Status.Terminal() {
		return o, nil
	}
	status, filled, err := m.api.OrderStatus(ctx, o.ID)
	if err != nil {
		return o, fmt.Errorf("orders: sync %s: %w", o.ID, err)
	}
	if status == o.Status && filled == o.FilledUnits {
		return o, nil
	}
	if !o.Status.CanTransition(status) {
		m.logger.Warn("ignoring non-monotonic status from venue",
			slog.String("venue_id", o.ID),
			slog.String("from", string(o.Status)),
			slog.String("to", string(status)))
		return o, nil
	}
	o.Status = status
	o.FilledUnits = filled
	o.UpdatedAt = time.Now().UTC()
	if err := m.store.RecordFill(ctx, o.ClientID, filled, status); err != nil {
		m.logger.Error("persist fill failed", slog.String("client_id", o.ClientID), slog.String("error", err.Error()))
	}
	return o, nil
}

// Cancel cancels one order with a fresh signed authorization. Cancelling an
// order that already filled is a no-op, not an error.
func (m *Manager) Cancel(ctx context.Context, o domain.Order) (domain.Order, error) {
	unlock := m.lockMarket(o.MarketID)
	defer unlock()
	return m.cancelLocked(ctx, o)
}

func (m *Manager) cancelLocked(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.Status.Terminal() {
		return o, nil
	}
	if o.ID == "" {
		// Never reached the venue; cancel locally.
		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = time.Now().UTC()
		if err := m.store.UpdateStatus(ctx, o.ClientID, o.Status); err != nil {
			return o, fmt.Errorf("orders: persist local cancel %s: %w", o.ClientID, err)
		}
		return o, nil
	}

	ts := time.Now().UnixMilli()
	message, sig, err := m.signer.SignCancel(o.ID, ts)
	if err != nil {
		return o, fmt.Errorf("orders: %w: cancel %s: %v", domain.ErrSigningFailed, o.ID, err)
	}

	status, err := m.api.CancelOrder(ctx, o.ID, domain.CancelAuthorization{
		Message:     message,
		TimestampMs: ts,
		Signature:   sig,
	})
	if err != nil {
		return o, fmt.Errorf("orders: cancel %s: %w", o.ID, err)
	}

	// A fill that raced the cancel wins; the venue's terminal status stands.
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateStatus(ctx, o.ClientID, o.Status); err != nil {
		m.logger.Error("persist cancel failed", slog.String("client_id", o.ClientID), slog.String("error", err.Error()))
	}
	m.logger.Info("order cancelled",
		slog.String("venue_id", o.ID),
		slog.String("status", string(o.Status)))
	return o, nil
}

// CancelAllForMarket cancels every live order on a market, used when the
// market leaves the betting phase. The market lock is held across the whole
// sweep so a racing submission cannot slip a new order in behind the
// cancels.
func (m *Manager) CancelAllForMarket(ctx context.Context, marketID uint64) (int, error) {
	unlock := m.lockMarket(marketID)
	defer unlock()

	live, err := m.store.ListLive(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("orders: list live for market %d: %w", marketID, err)
	}

	cancelled := 0
	var firstErr error
	for _, o := range live {
		if _, err := m.cancelLocked(ctx, o); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cancelled++
	}
	return cancelled, firstErr
}

// LiveOrders returns the orders still live on a market.
func (m *Manager) LiveOrders(ctx context.Context, marketID uint64) ([]domain.Order, error) {
	return m.store.ListLive(ctx, marketID)
}

// lockMarket takes the per-market sequencing lock and returns its unlock.
func (m *Manager) lockMarket(marketID uint64) func() {
	m.mu.Lock()
	lock, ok := m.marketLocks[marketID]
	if !ok {
		lock = &sync.Mutex{}
		m.marketLocks[marketID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
