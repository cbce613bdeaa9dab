// Package signal scores trading opportunities from market snapshots. Each
// cycle recomputes every signal from scratch; nothing here carries state
// across cycles except the momentum flow window.
package signal

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// FairPriceOracle estimates the fair value of an outcome. The numeric model
// behind it is pluggable; VenueOracle uses the venue's published estimate.
type FairPriceOracle interface {
	FairBps(snap domain.Snapshot, outcome domain.Outcome) (int64, bool)
}

// VenueOracle reads the fair-price estimate the venue publishes with each
// snapshot.
type VenueOracle struct{}

// FairBps returns the snapshot's fair estimate, or ok=false when the venue
// published none.
func (VenueOracle) FairBps(snap domain.Snapshot, outcome domain.Outcome) (int64, bool) {
	fair := snap.FairBpsFor(outcome)
	return fair, fair > 0
}

// Calculator computes edge signals from snapshots. Only kinds in the enabled
// set are evaluated.
type Calculator struct {
	enabled          domain.KindSet
	oracle           FairPriceOracle
	flow             *FlowTracker
	spreadImproveBps int64
	logger           *slog.Logger
}

// NewCalculator creates a Calculator. spreadImproveBps is how far inside the
// current best bid/ask a spread-capture quote must sit on each side.
func NewCalculator(enabled domain.KindSet, oracle FairPriceOracle, momentumWindow time.Duration, spreadImproveBps int64, logger *slog.Logger) *Calculator {
	if oracle == nil {
		oracle = VenueOracle{}
	}
	if spreadImproveBps <= 0 {
		spreadImproveBps = 10
	}
	return &Calculator{
		enabled:          enabled,
		oracle:           oracle,
		flow:             NewFlowTracker(momentumWindow),
		spreadImproveBps: spreadImproveBps,
		logger:           logger.With(slog.String("component", "signal")),
	}
}

// Compute returns every enabled signal the snapshot supports, ranked
// best-first. Non-tradable or stale-labelled snapshots produce no signals.
func (c *Calculator) Compute(snap domain.Snapshot) []domain.EdgeSignal {
	c.flow.Observe(snap)

	if snap.Phase != domain.PhaseBetting {
		return nil
	}

	var signals []domain.EdgeSignal
	now := time.Now().UTC()

	if c.enabled.Enabled(domain.SignalArbitrage) {
		if s, ok := c.arbitrage(snap, now); ok {
			signals = append(signals, s)
		}
	}
	if c.enabled.Enabled(domain.SignalMintSell) {
		if s, ok := c.mintSell(snap, now); ok {
			signals = append(signals, s)
		}
	}
	if c.enabled.Enabled(domain.SignalSpreadCapture) {
		signals = append(signals, c.spreadCapture(snap, now)...)
	}
	if c.enabled.Enabled(domain.SignalDirectional) {
		signals = append(signals, c.directional(snap, now)...)
	}
	if c.enabled.Enabled(domain.SignalMomentum) {
		if s, ok := c.momentum(snap, now); ok {
			signals = append(signals, s)
		}
	}

	domain.RankSignals(signals)
	return signals
}

// arbitrage detects a buy-both opportunity: the two asks sum below $1, so
// buying one of each locks in the difference at resolution.
func (c *Calculator) arbitrage(snap domain.Snapshot, now time.Time) (domain.EdgeSignal, bool) {
	yesAsk, noAsk := snap.Yes.AskBps, snap.No.AskBps
	if yesAsk <= 0 || noAsk <= 0 {
		return domain.EdgeSignal{}, false
	}
	edge := domain.PricePrecision - (yesAsk + noAsk)
	if edge <= 0 {
		return domain.EdgeSignal{}, false
	}
	return domain.EdgeSignal{
		ID:         uuid.NewString(),
		Kind:       domain.SignalArbitrage,
		MarketID:   snap.MarketID,
		Outcome:    domain.OutcomeYes,
		Side:       domain.OrderSideBuy,
		EdgeBps:    edge,
		Snapshot:   snap,
		Reason:     "asks sum below parity",
		DetectedAt: now,
	}, true
}

// mintSell detects the inverse: the two bids sum above $1, so minting a pair
// at $1 and selling both sides locks in the excess.
func (c *Calculator) mintSell(snap domain.Snapshot, now time.Time) (domain.EdgeSignal, bool) {
	yesBid, noBid := snap.Yes.BidBps, snap.No.BidBps
	if yesBid <= 0 || noBid <= 0 {
		return domain.EdgeSignal{}, false
	}
	edge := (yesBid + noBid) - domain.PricePrecision
	if edge <= 0 {
		return domain.EdgeSignal{}, false
	}
	return domain.EdgeSignal{
		ID:         uuid.NewString(),
		Kind:       domain.SignalMintSell,
		MarketID:   snap.MarketID,
		Outcome:    domain.OutcomeYes,
		Side:       domain.OrderSideSell,
		EdgeBps:    edge,
		Snapshot:   snap,
		Reason:     "bids sum above parity",
		DetectedAt: now,
	}, true
}

// spreadCapture looks for room to quote both sides strictly inside the
// current best bid/ask of one outcome. The achievable round-trip capture is
// the spread minus the improvement paid on each side.
func (c *Calculator) spreadCapture(snap domain.Snapshot, now time.Time) []domain.EdgeSignal {
	var out []domain.EdgeSignal
	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		q := snap.QuoteFor(outcome)
		if !q.HasBothSides() {
			continue
		}
		capture := q.SpreadBps() - 2*c.spreadImproveBps
		if capture <= 0 {
			continue
		}
		out = append(out, domain.EdgeSignal{
			ID:         uuid.NewString(),
			Kind:       domain.SignalSpreadCapture,
			MarketID:   snap.MarketID,
			Outcome:    outcome,
			Side:       domain.OrderSideBuy,
			EdgeBps:    capture,
			Snapshot:   snap,
			Reason:     "spread wide enough to quote inside",
			DetectedAt: now,
		})
	}
	return out
}

// directional compares the oracle's fair estimate against the book. A fair
// value above the ask is a buy; below the bid is a sell. The edge is signed
// toward the mispriced side.
func (c *Calculator) directional(snap domain.Snapshot, now time.Time) []domain.EdgeSignal {
	var out []domain.EdgeSignal
	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		fair, ok := c.oracle.FairBps(snap, outcome)
		if !ok {
			continue
		}
		q := snap.QuoteFor(outcome)

		if q.AskBps > 0 && fair > q.AskBps {
			out = append(out, domain.EdgeSignal{
				ID:         uuid.NewString(),
				Kind:       domain.SignalDirectional,
				MarketID:   snap.MarketID,
				Outcome:    outcome,
				Side:       domain.OrderSideBuy,
				EdgeBps:    fair - q.AskBps,
				Snapshot:   snap,
				Reason:     "ask below fair estimate",
				DetectedAt: now,
			})
		}
		if q.BidBps > 0 && fair > 0 && fair < q.BidBps {
			out = append(out, domain.EdgeSignal{
				ID:         uuid.NewString(),
				Kind:       domain.SignalDirectional,
				MarketID:   snap.MarketID,
				Outcome:    outcome,
				Side:       domain.OrderSideSell,
				EdgeBps:    q.BidBps - fair,
				Snapshot:   snap,
				Reason:     "bid above fair estimate",
				DetectedAt: now,
			})
		}
	}
	return out
}

// momentum derives an edge from the YES price drift over the rolling flow
// window, signed toward the dominant direction. Upward drift buys YES,
// downward drift buys NO.
func (c *Calculator) momentum(snap domain.Snapshot, now time.Time) (domain.EdgeSignal, bool) {
	drift, ok := c.flow.DriftBps(snap.MarketID)
	if !ok || drift == 0 {
		return domain.EdgeSignal{}, false
	}

	outcome := domain.OutcomeYes
	edge := drift
	if drift < 0 {
		outcome = domain.OutcomeNo
		edge = -drift
	}
	return domain.EdgeSignal{
		ID:         uuid.NewString(),
		Kind:       domain.SignalMomentum,
		MarketID:   snap.MarketID,
		Outcome:    outcome,
		Side:       domain.OrderSideBuy,
		EdgeBps:    edge,
		Snapshot:   snap,
		Reason:     "trade flow drifting toward outcome",
		DetectedAt: now,
	}, true
}

// Forget clears momentum history for a market that left the tradable phase.
func (c *Calculator) Forget(marketID uint64) {
	c.flow.Forget(marketID)
}
