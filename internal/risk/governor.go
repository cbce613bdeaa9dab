// Package risk admits, clamps, or drops trade intents against the session's
// hard limits. The governor is a pure transform over in-memory state; it
// never touches the network, which keeps it unit-testable on static
// snapshots.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Governor applies the session's risk limits to a ranked intent list.
type Governor struct {
	limits domain.RiskLimits
	logger *slog.Logger
}

// NewGovernor creates a Governor with the given limits.
func NewGovernor(limits domain.RiskLimits, logger *slog.Logger) *Governor {
	return &Governor{
		limits: limits,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// Limits returns the session's limits record.
func (g *Governor) Limits() domain.RiskLimits {
	return g.limits
}

// Input is everything one governing pass needs. Snapshots and positions must
// come from the same cycle so the exposure clamp sees a consistent view of
// committed capital across all markets.
type Input struct {
	Intents   []domain.OrderIntent
	Positions map[domain.PositionKey]domain.Position
	Snapshots map[uint64]domain.Snapshot
	View      domain.LedgerView
	// Edges holds the best current signal edge per (market, outcome). Used
	// by the stop-loss check to decide whether the originating edge has
	// vanished.
	Edges map[domain.PositionKey]int64
	Now   time.Time
}

// Result is the admissible subset plus an attribution for every drop.
type Result struct {
	Admitted []domain.OrderIntent
	Skips    []domain.SkipReason
}

// PlanIntents converts ranked signals into order intents. Pair kinds
// (arbitrage, mint-sell) expand to one intent per outcome; one-sided kinds
// produce a single intent priced at the side they act on.
func (g *Governor) PlanIntents(signals []domain.EdgeSignal, now time.Time) []domain.OrderIntent {
	var intents []domain.OrderIntent
	for _, s := range signals {
		switch s.Kind {
		case domain.SignalArbitrage:
			intents = append(intents,
				g.newIntent(s, domain.OutcomeYes, domain.OrderSideBuy, s.Snapshot.Yes.AskBps, now),
				g.newIntent(s, domain.OutcomeNo, domain.OrderSideBuy, s.Snapshot.No.AskBps, now))
		case domain.SignalMintSell:
			intents = append(intents,
				g.newIntent(s, domain.OutcomeYes, domain.OrderSideSell, s.Snapshot.Yes.BidBps, now),
				g.newIntent(s, domain.OutcomeNo, domain.OrderSideSell, s.Snapshot.No.BidBps, now))
		default:
			q := s.Snapshot.QuoteFor(s.Outcome)
			price := q.AskBps
			if s.Side == domain.OrderSideSell {
				price = q.BidBps
			}
			intents = append(intents, g.newIntent(s, s.Outcome, s.Side, price, now))
		}
	}
	return intents
}

func (g *Governor) newIntent(s domain.EdgeSignal, outcome domain.Outcome, side domain.OrderSide, priceBps int64, now time.Time) domain.OrderIntent {
	return domain.OrderIntent{
		ID:          uuid.NewString(),
		MarketID:    s.MarketID,
		Side:        side,
		Outcome:     outcome,
		PriceBps:    priceBps,
		AmountUnits: g.limits.DefaultOrderUnits,
		Signal:      s.Kind,
		EdgeBps:     s.EdgeBps,
		Reason:      s.Reason,
		CreatedAt:   now,
	}
}

// Govern filters and clamps the intents, in order: phase gate, sizing band,
// per-position cap, aggregate exposure clamp. Stop-loss closes are injected
// for under-water positions whose edge has vanished; by default they run
// ahead of all new intents.
func (g *Governor) Govern(in Input) Result {
	var res Result

	intents := in.Intents
	closes := g.stopLossCloses(in)
	if g.limits.StopLossPriority {
		intents = append(closes, intents...)
	} else {
		intents = append(append([]domain.OrderIntent{}, intents...), closes...)
	}

	// committed tracks notional admitted so far this pass so concurrent
	// markets cannot race past the shared exposure cap.
	var committed int64
	posNotional := make(map[domain.PositionKey]int64, len(in.Positions))
	for key, p := range in.Positions {
		posNotional[key] = p.CostUnits()
	}

	for _, intent := range intents {
		snap, ok := in.Snapshots[intent.MarketID]
		if !ok || snap.Phase != domain.PhaseBetting {
			res.Skips = append(res.Skips, skip(intent, "market not in betting phase"))
			continue
		}
		if intent.PriceBps <= 0 || intent.AmountUnits <= 0 {
			res.Skips = append(res.Skips, skip(intent, "empty quote for intent side"))
			continue
		}

		if intent.Closing {
			// Closes reduce exposure; they bypass the caps below.
			res.Admitted = append(res.Admitted, intent)
			continue
		}

		admitted, reason := g.clampIntent(intent, posNotional, in.View, committed)
		if admitted.AmountUnits <= 0 {
			res.Skips = append(res.Skips, skip(intent, reason))
			continue
		}

		notional := admitted.NotionalUnits()
		committed += notional
		if admitted.Side == domain.OrderSideBuy {
			key := domain.PositionKey{MarketID: admitted.MarketID, Outcome: admitted.Outcome}
			posNotional[key] += notional
		}
		res.Admitted = append(res.Admitted, admitted)
	}

	if len(res.Skips) > 0 {
		g.logger.Debug("intents dropped", slog.Int("count", len(res.Skips)))
	}
	return res
}

// clampIntent applies the sizing band, position cap, and exposure clamp to a
// single opening intent. Returns the clamped intent and, when the size
// reaches zero, the reason.
func (g *Governor) clampIntent(intent domain.OrderIntent, posNotional map[domain.PositionKey]int64, view domain.LedgerView, committed int64) (domain.OrderIntent, string) {
	bandPct := g.limits.SizingBandPct(intent.EdgeBps)
	if bandPct <= 0 {
		return zeroed(intent), fmt.Sprintf("edge below minimum %d bps: %v", g.limits.MinEdgeBps, domain.ErrRiskLimitViolation)
	}

	maxNotional := intent.NotionalUnits()

	// Sizing band: at most bandPct of available capital.
	bandCap := int64(float64(view.AvailableUnits()-committed) * bandPct / 100)
	if bandCap < maxNotional {
		maxNotional = bandCap
	}

	// Position cap per (market, outcome). Sells reduce the position, so the
	// cap binds buys only.
	if intent.Side == domain.OrderSideBuy {
		key := domain.PositionKey{MarketID: intent.MarketID, Outcome: intent.Outcome}
		headroom := g.limits.MaxPositionUnits - posNotional[key]
		if headroom < maxNotional {
			maxNotional = headroom
		}
	}

	// Aggregate exposure clamp over the cycle's consistent capital view.
	total := view.TotalCapitalUnits()
	if total > 0 {
		maxDeployed := int64(float64(total) * g.limits.MaxExposurePct / 100)
		headroom := maxDeployed - view.DeployedUnits() - committed
		if headroom < maxNotional {
			maxNotional = headroom
		}
	}

	if maxNotional <= 0 {
		return zeroed(intent), fmt.Sprintf("no capital headroom: %v", domain.ErrRiskLimitViolation)
	}

	// Convert the clamped notional back to a share quantity at the intent
	// price.
	maxAmount := maxNotional * domain.PricePrecision / intent.PriceBps
	if maxAmount < intent.AmountUnits {
		intent.AmountUnits = maxAmount
	}
	if intent.AmountUnits <= 0 {
		return zeroed(intent), fmt.Sprintf("clamped to zero: %v", domain.ErrRiskLimitViolation)
	}
	return intent, ""
}

// stopLossCloses builds a closing intent for every position whose
// mark-to-market loss breaches the stop-loss limit while its edge has
// vanished.
func (g *Governor) stopLossCloses(in Input) []domain.OrderIntent {
	var closes []domain.OrderIntent
	for key, pos := range in.Positions {
		if pos.Units <= 0 {
			continue
		}
		snap, ok := in.Snapshots[key.MarketID]
		if !ok || snap.Phase != domain.PhaseBetting {
			continue
		}
		mark := snap.QuoteFor(key.Outcome).BidBps
		if mark <= 0 {
			continue
		}
		if pos.LossFraction(mark)*100 < g.limits.StopLossPct {
			continue
		}
		if in.Edges[key] > 0 {
			// The originating edge is still live; hold the position.
			continue
		}
		closes = append(closes, domain.OrderIntent{
			ID:          uuid.NewString(),
			MarketID:    key.MarketID,
			Side:        domain.OrderSideSell,
			Outcome:     key.Outcome,
			PriceBps:    mark,
			AmountUnits: pos.Units,
			Signal:      domain.SignalDirectional,
			Closing:     true,
			Reason:      "stop loss breached with vanished edge",
			CreatedAt:   in.Now,
		})
		g.logger.Info("stop loss close injected",
			slog.Uint64("market_id", key.MarketID),
			slog.String("outcome", string(key.Outcome)),
			slog.Int64("units", pos.Units),
			slog.Int64("mark_bps", mark))
	}
	return closes
}

func zeroed(intent domain.OrderIntent) domain.OrderIntent {
	intent.AmountUnits = 0
	return intent
}

func skip(intent domain.OrderIntent, reason string) domain.SkipReason {
	return domain.SkipReason{
		MarketID: intent.MarketID,
		Stage:    "risk",
		Reason:   fmt.Sprintf("%s %s %s: %s", intent.Side, intent.Outcome, intent.Signal, reason),
	}
}
