// Package ledger is the authoritative view of holdings, balances, and P&L.
// Positions move only on confirmed fills and settlement events; in-flight
// orders touch the reserved balance, never the positions.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Ledger tracks positions, balances, and realized P&L for one session. All
// methods are safe for concurrent use.
type Ledger struct {
	mu sync.RWMutex

	walletUnits   int64
	vaultUnits    int64
	reservedUnits int64
	realizedUnits int64

	positions map[domain.PositionKey]domain.Position

	// halted markets have drifted between the venue and chain views and
	// accept no further capital-committing actions until re-reconciled.
	halted map[uint64]string

	cycleSeq uint64
	logger   *slog.Logger
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[domain.PositionKey]domain.Position),
		halted:    make(map[uint64]string),
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// SetBalances overwrites the wallet and vault balances from an authoritative
// chain read.
func (l *Ledger) SetBalances(walletUnits, vaultUnits int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walletUnits = walletUnits
	l.vaultUnits = vaultUnits
}

// Reserve commits notional to a live order. Fails when the vault cannot
// cover it.
func (l *Ledger) Reserve(notionalUnits int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if notionalUnits > l.vaultUnits {
		return fmt.Errorf("ledger: reserve %d: %w: vault holds %d", notionalUnits, domain.ErrInsufficient, l.vaultUnits)
	}
	l.vaultUnits -= notionalUnits
	l.reservedUnits += notionalUnits
	return nil
}

// Release returns unfilled reserved notional to the vault, e.g. after a
// cancel or rejection.
func (l *Ledger) Release(notionalUnits int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if notionalUnits > l.reservedUnits {
		notionalUnits = l.reservedUnits
	}
	l.reservedUnits -= notionalUnits
	l.vaultUnits += notionalUnits
}

// ApplyFill books one confirmed fill. Buys consume reserved notional and
// update the weighted average cost; sells realize P&L against the average
// cost and credit the vault.
func (l *Ledger) ApplyFill(f domain.Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	notional := f.PriceBps * f.AmountUnits / domain.PricePrecision
	key := domain.PositionKey{MarketID: f.MarketID, Outcome: f.Outcome}
	pos := l.positions[key]
	pos.MarketID = f.MarketID
	pos.Outcome = f.Outcome

	switch f.Side {
	case domain.OrderSideBuy:
		// The buy's notional was reserved at submission; the fill converts
		// it into a position at weighted average cost.
		spent := notional + f.FeeUnits
		if spent > l.reservedUnits {
			excess := spent - l.reservedUnits
			l.reservedUnits = 0
			l.vaultUnits -= excess
		} else {
			l.reservedUnits -= spent
		}
		newUnits := pos.Units + f.AmountUnits
		if newUnits > 0 {
			pos.AvgCostBps = (pos.Units*pos.AvgCostBps + f.AmountUnits*f.PriceBps) / newUnits
		}
		pos.Units = newUnits

	case domain.OrderSideSell:
		if f.AmountUnits > pos.Units {
			return fmt.Errorf("ledger: sell fill %s: %w: %d units held, %d sold",
				f.OrderID, domain.ErrReconciliationDrift, pos.Units, f.AmountUnits)
		}
		l.realizedUnits += (f.PriceBps - pos.AvgCostBps) * f.AmountUnits / domain.PricePrecision
		l.realizedUnits -= f.FeeUnits
		l.vaultUnits += notional - f.FeeUnits
		pos.Units -= f.AmountUnits
		if pos.Units == 0 {
			pos.AvgCostBps = 0
		}

	default:
		return fmt.Errorf("ledger: fill %s: unknown side %q", f.OrderID, f.Side)
	}

	pos.UpdatedAt = f.Timestamp
	l.storePosition(key, pos)
	return nil
}

// ApplyDeposit moves confirmed collateral from the wallet to the vault.
func (l *Ledger) ApplyDeposit(amountUnits int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walletUnits -= amountUnits
	l.vaultUnits += amountUnits
}

// ApplyWithdraw moves confirmed collateral from the vault to the wallet.
func (l *Ledger) ApplyWithdraw(amountUnits int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaultUnits -= amountUnits
	l.walletUnits += amountUnits
}

// ApplyMint books a confirmed mint: amountUnits of collateral becomes an
// equal YES and NO set, each side carried at half of parity so the pair's
// cost stays exactly $1.
func (l *Ledger) ApplyMint(marketID uint64, amountUnits int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amountUnits <= 0 {
		return nil
	}
	if amountUnits > l.vaultUnits {
		return fmt.Errorf("ledger: mint %d: %w: vault holds %d", amountUnits, domain.ErrInsufficient, l.vaultUnits)
	}
	l.vaultUnits -= amountUnits

	half := domain.PricePrecision / 2
	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		key := domain.PositionKey{MarketID: marketID, Outcome: outcome}
		pos := l.positions[key]
		pos.MarketID = marketID
		pos.Outcome = outcome
		newUnits := pos.Units + amountUnits
		pos.AvgCostBps = (pos.Units*pos.AvgCostBps + amountUnits*half) / newUnits
		pos.Units = newUnits
		pos.UpdatedAt = at
		l.storePosition(key, pos)
	}
	return nil
}

// ApplyMerge books a confirmed merge: an equal YES and NO set returns
// amountUnits of collateral at $1 parity. Any difference between parity and
// the pair's carried cost realizes as P&L.
func (l *Ledger) ApplyMerge(marketID uint64, amountUnits int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amountUnits <= 0 {
		return nil
	}
	yesKey := domain.PositionKey{MarketID: marketID, Outcome: domain.OutcomeYes}
	noKey := domain.PositionKey{MarketID: marketID, Outcome: domain.OutcomeNo}
	yes, no := l.positions[yesKey], l.positions[noKey]
	if yes.Units < amountUnits || no.Units < amountUnits {
		return fmt.Errorf("ledger: merge %d on market %d: %w: holding %d yes, %d no",
			amountUnits, marketID, domain.ErrInsufficient, yes.Units, no.Units)
	}

	removedCost := amountUnits*yes.AvgCostBps/domain.PricePrecision +
		amountUnits*no.AvgCostBps/domain.PricePrecision
	l.realizedUnits += amountUnits - removedCost
	l.vaultUnits += amountUnits

	yes.Units -= amountUnits
	no.Units -= amountUnits
	if yes.Units == 0 {
		yes.AvgCostBps = 0
	}
	if no.Units == 0 {
		no.AvgCostBps = 0
	}
	yes.UpdatedAt, no.UpdatedAt = at, at
	l.storePosition(yesKey, yes)
	l.storePosition(noKey, no)
	return nil
}

// ApplyClaim books a confirmed resolution payout: $1 per winning share minus
// the on-chain fee, and both positions on the market are zeroed (the losing
// side expires worthless).
func (l *Ledger) ApplyClaim(marketID uint64, winner domain.Outcome, feeUnits int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	winKey := domain.PositionKey{MarketID: marketID, Outcome: winner}
	loseKey := domain.PositionKey{MarketID: marketID, Outcome: winner.Opposite()}
	win, lose := l.positions[winKey], l.positions[loseKey]

	payout := win.Units - feeUnits
	l.vaultUnits += payout
	l.realizedUnits += payout - win.CostUnits() - lose.CostUnits()

	delete(l.positions, winKey)
	delete(l.positions, loseKey)

	l.logger.Info("claim booked",
		slog.Uint64("market_id", marketID),
		slog.String("winner", string(winner)),
		slog.Int64("payout_units", payout))
	return nil
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() map[domain.PositionKey]domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[domain.PositionKey]domain.Position, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// Position returns one position; the zero value when none is open.
func (l *Ledger) Position(key domain.PositionKey) domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[key]
}

// View assembles a consistent LedgerView, valuing positions at the supplied
// bid marks. Matched YES/NO pairs are valued at $1 parity regardless of mark
// prices; only the unmatched remainder takes the market's mark.
func (l *Ledger) View(marks map[domain.PositionKey]int64, cycleSeq uint64) domain.LedgerView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var positionValue, unrealized int64
	seen := make(map[uint64]bool)
	for key, pos := range l.positions {
		if pos.Units == 0 || seen[key.MarketID] {
			continue
		}
		seen[key.MarketID] = true

		yes := l.positions[domain.PositionKey{MarketID: key.MarketID, Outcome: domain.OutcomeYes}]
		no := l.positions[domain.PositionKey{MarketID: key.MarketID, Outcome: domain.OutcomeNo}]

		pairs := min64(yes.Units, no.Units)
		value := pairs // $1 per matched pair
		value += remainderValue(yes, pairs, marks[domain.PositionKey{MarketID: key.MarketID, Outcome: domain.OutcomeYes}])
		value += remainderValue(no, pairs, marks[domain.PositionKey{MarketID: key.MarketID, Outcome: domain.OutcomeNo}])

		positionValue += value
		unrealized += value - yes.CostUnits() - no.CostUnits()
	}

	return domain.LedgerView{
		WalletUnits:        l.walletUnits,
		VaultUnits:         l.vaultUnits,
		ReservedUnits:      l.reservedUnits,
		PositionValueUnits: positionValue,
		RealizedPnLUnits:   l.realizedUnits,
		UnrealizedPnLUnits: unrealized,
		CycleSeq:           cycleSeq,
		RetrievedAt:        time.Now().UTC(),
	}
}

// remainderValue marks the unmatched share remainder. Without a mark the
// remainder is carried at cost.
func remainderValue(pos domain.Position, pairs, markBps int64) int64 {
	rest := pos.Units - pairs
	if rest <= 0 {
		return 0
	}
	if markBps <= 0 {
		markBps = pos.AvgCostBps
	}
	return rest * markBps / domain.PricePrecision
}

// Halt blocks further capital-committing actions on a market after a
// reconciliation drift.
func (l *Ledger) Halt(marketID uint64, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halted[marketID] = reason
	l.logger.Warn("market halted", slog.Uint64("market_id", marketID), slog.String("reason", reason))
}

// Halted reports whether the market is blocked by an unresolved drift.
func (l *Ledger) Halted(marketID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.halted[marketID]
	return ok
}

// ClearHalt lifts the block after a clean reconciliation.
func (l *Ledger) ClearHalt(marketID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.halted, marketID)
}

func (l *Ledger) storePosition(key domain.PositionKey, pos domain.Position) {
	if pos.Units == 0 {
		delete(l.positions, key)
		return
	}
	l.positions[key] = pos
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
