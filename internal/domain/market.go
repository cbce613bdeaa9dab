// Package domain holds the core types shared across the trading engine:
// markets, snapshots, signals, intents, orders, positions, and the error
// taxonomy. It has no dependencies on the infrastructure packages.
package domain

import "time"

// PricePrecision is the basis-point price scale: 10000 = $1.00 = 100%.
const PricePrecision int64 = 10000

// AmountDecimals is the number of decimals of the settlement currency (USDC).
const AmountDecimals = 6

// AmountScale converts between display USDC and smallest-unit amounts.
const AmountScale int64 = 1_000_000

// MarketPhase is the lifecycle stage of a market. Phases are monotonic:
// BETTING -> LOCKED -> RESOLVED, never backwards.
type MarketPhase string

const (
	PhaseBetting  MarketPhase = "BETTING"
	PhaseLocked   MarketPhase = "LOCKED"
	PhaseResolved MarketPhase = "RESOLVED"
)

// rank orders phases for monotonicity checks.
func (p MarketPhase) rank() int {
	switch p {
	case PhaseBetting:
		return 0
	case PhaseLocked:
		return 1
	case PhaseResolved:
		return 2
	default:
		return -1
	}
}

// Known reports whether p is one of the three venue phases.
func (p MarketPhase) Known() bool {
	return p.rank() >= 0
}

// CanTransition reports whether moving from p to next respects phase
// monotonicity. Staying in the same phase is always allowed.
func (p MarketPhase) CanTransition(next MarketPhase) bool {
	if !p.Known() || !next.Known() {
		return false
	}
	return next.rank() >= p.rank()
}

// Outcome identifies one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Market is one blackjack hand traded as a binary-outcome market. A market is
// created when the venue opens a new hand and archived after claim or timeout.
type Market struct {
	ID        uint64
	HandID    string
	Phase     MarketPhase
	Winner    *Outcome // nil until RESOLVED
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tradable reports whether new orders may be placed on the market.
func (m Market) Tradable() bool {
	return m.Phase == PhaseBetting
}

// Claimable reports whether the market has resolved and a winner is known.
func (m Market) Claimable() bool {
	return m.Phase == PhaseResolved && m.Winner != nil
}
