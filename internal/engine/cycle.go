package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/risk"
)

// runCycle executes one full pass of the pipeline. Per-market failures are
// isolated: they become skip entries in the report and never abort the rest
// of the cycle.
func (e *Engine) runCycle(ctx context.Context) (domain.CycleReport, error) {
	e.mu.Lock()
	e.cycleSeq++
	seq := e.cycleSeq
	e.mu.Unlock()

	report := domain.CycleReport{
		Cycle:     seq,
		StartedAt: time.Now().UTC(),
	}

	// Reconcile first so the cycle's capital view is authoritative.
	drifts, err := e.reconciler.Reconcile(ctx)
	if err != nil {
		return report, fmt.Errorf("cycle %d: %w", seq, err)
	}
	report.Skips = append(report.Skips, drifts...)

	snaps, skips, err := e.aggregator.CollectAll(ctx, e.cfg.MaxMarkets)
	if err != nil {
		return report, fmt.Errorf("cycle %d: %w", seq, err)
	}
	report.Skips = append(report.Skips, skips...)
	report.MarketsEvaluated = len(snaps)

	snapsByID := make(map[uint64]domain.Snapshot, len(snaps))
	for _, s := range snaps {
		snapsByID[s.MarketID] = s
	}

	// React to phase transitions before planning anything new.
	e.handleTransitions(ctx, snaps, &report)

	// Refresh live order statuses so filled amounts are current before the
	// exposure clamp reads the ledger.
	e.syncLiveOrders(ctx, snaps)

	// Signals across all markets, ranked best-first.
	var signals []domain.EdgeSignal
	edges := make(map[domain.PositionKey]int64)
	for _, snap := range snaps {
		if e.ledger.Halted(snap.MarketID) {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: snap.MarketID,
				Stage:    "signal",
				Reason:   "market halted pending reconciliation",
			})
			continue
		}
		for _, s := range e.calc.Compute(snap) {
			signals = append(signals, s)
			key := domain.PositionKey{MarketID: s.MarketID, Outcome: s.Outcome}
			if s.EdgeBps > edges[key] {
				edges[key] = s.EdgeBps
			}
		}
	}
	domain.RankSignals(signals)
	report.SignalsDetected = len(signals)

	// Risk pass over a single consistent capital view.
	now := time.Now().UTC()
	marks := e.bidMarks(snapsByID)
	view := e.ledger.View(marks, seq)
	result := e.governor.Govern(risk.Input{
		Intents:   e.governor.PlanIntents(signals, now),
		Positions: e.ledger.Positions(),
		Snapshots: snapsByID,
		View:      view,
		Edges:     edges,
		Now:       now,
	})
	report.Skips = append(report.Skips, result.Skips...)
	report.IntentsAdmitted = len(result.Admitted)
	report.IntentsDropped = len(result.Skips)

	// Execute.
	if !e.cfg.Observe {
		e.executeIntents(ctx, result.Admitted, &report)
		e.claimResolved(ctx, snaps, &report)
	}

	// Close out the cycle.
	finalView := e.ledger.View(marks, seq)
	report.FinishedAt = time.Now().UTC()
	report.OpenPositions = len(e.ledger.Positions())
	report.RealizedPnLUnits = finalView.RealizedPnLUnits
	report.UnrealizedPnLUnits = finalView.UnrealizedPnLUnits
	report.ExposurePct = finalView.ExposureRatio() * 100
	report.GoalProgressPct = e.goalProgress(finalView)

	e.emit(ctx, report)
	e.logger.Info("cycle complete",
		slog.Uint64("cycle", seq),
		slog.Int("markets", report.MarketsEvaluated),
		slog.Int("signals", report.SignalsDetected),
		slog.Int("orders", report.OrdersPlaced),
		slog.Int64("realized_pnl", report.RealizedPnLUnits),
		slog.Float64("exposure_pct", report.ExposurePct))
	return report, nil
}

// handleTransitions cancels live orders on markets leaving the betting phase
// and records each market's phase for the next cycle.
func (e *Engine) handleTransitions(ctx context.Context, snaps []domain.Snapshot, report *domain.CycleReport) {
	for _, snap := range snaps {
		e.mu.Lock()
		prev, seen := e.lastPhases[snap.MarketID]
		if !seen || prev.CanTransition(snap.Phase) {
			e.lastPhases[snap.MarketID] = snap.Phase
		}
		e.mu.Unlock()

		if snap.Phase == domain.PhaseBetting {
			continue
		}
		if seen && prev == snap.Phase {
			continue // already handled
		}

		if e.cfg.Observe {
			continue
		}
		live, err := e.manager.LiveOrders(ctx, snap.MarketID)
		if err != nil {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: snap.MarketID,
				Stage:    "execute",
				Reason:   fmt.Sprintf("listing live orders: %v", err),
			})
			continue
		}

		cancelled, err := e.manager.CancelAllForMarket(ctx, snap.MarketID)
		if err != nil {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: snap.MarketID,
				Stage:    "execute",
				Reason:   fmt.Sprintf("lock sweep: %v", err),
			})
		}
		report.OrdersCancelled += cancelled

		// Return the cancelled buys' unfilled notional to the vault. Sells
		// never reserved any.
		for _, o := range live {
			if o.Side == domain.OrderSideBuy {
				e.ledger.Release(o.RemainingUnits() * o.PriceBps / domain.PricePrecision)
			}
		}
		e.calc.Forget(snap.MarketID)
	}
}

// syncLiveOrders refreshes the status of every live order on the cycle's
// markets.
func (e *Engine) syncLiveOrders(ctx context.Context, snaps []domain.Snapshot) {
	for _, snap := range snaps {
		live, err := e.manager.LiveOrders(ctx, snap.MarketID)
		if err != nil {
			continue
		}
		for _, o := range live {
			if _, err := e.manager.SyncStatus(ctx, o); err != nil {
				e.logger.Warn("order sync failed",
					slog.String("venue_id", o.ID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// executeIntents submits the admitted intents in rank order. Capital is
// reserved before each submission and released again when the order dies
// unfilled.
func (e *Engine) executeIntents(ctx context.Context, intents []domain.OrderIntent, report *domain.CycleReport) {
	for _, intent := range intents {
		if e.ledger.Halted(intent.MarketID) {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: intent.MarketID,
				Stage:    "execute",
				Reason:   "market halted pending reconciliation",
			})
			continue
		}

		if err := e.prepareCapital(ctx, intent); err != nil {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: intent.MarketID,
				Stage:    "execute",
				Reason:   err.Error(),
			})
			continue
		}

		order, err := e.manager.Execute(ctx, intent)
		if err != nil {
			if intent.Side == domain.OrderSideBuy {
				e.ledger.Release(intent.NotionalUnits())
			}
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: intent.MarketID,
				Stage:    "execute",
				Reason:   err.Error(),
			})
			continue
		}

		report.OrdersPlaced++
		report.Trades = append(report.Trades, domain.TradeRecord{
			OrderID:     order.ID,
			MarketID:    order.MarketID,
			Side:        order.Side,
			Outcome:     order.Outcome,
			PriceBps:    order.PriceBps,
			AmountUnits: order.AmountUnits,
			Signal:      order.Signal,
			Status:      order.Status,
		})
	}
}

// prepareCapital reserves buy notional and, for mint-and-sell intents,
// mints the share set the sell is about to quote.
func (e *Engine) prepareCapital(ctx context.Context, intent domain.OrderIntent) error {
	if intent.Signal == domain.SignalMintSell && intent.Side == domain.OrderSideSell {
		held := e.ledger.Position(domain.PositionKey{MarketID: intent.MarketID, Outcome: intent.Outcome}).Units
		if held < intent.AmountUnits {
			if _, err := e.settler.Mint(ctx, intent.MarketID, intent.AmountUnits-held); err != nil {
				return fmt.Errorf("mint for sell: %v", err)
			}
		}
		return nil
	}
	if intent.Side == domain.OrderSideBuy {
		if err := e.ledger.Reserve(intent.NotionalUnits()); err != nil {
			return fmt.Errorf("reserve capital: %v", err)
		}
	}
	return nil
}

// claimResolved settles every resolved market with a known winner.
func (e *Engine) claimResolved(ctx context.Context, snaps []domain.Snapshot, report *domain.CycleReport) {
	for _, snap := range snaps {
		if snap.Phase != domain.PhaseResolved || snap.Winner == nil {
			continue
		}
		held := e.ledger.Position(domain.PositionKey{MarketID: snap.MarketID, Outcome: *snap.Winner}).Units
		if held <= 0 {
			continue
		}
		if _, err := e.settler.Claim(ctx, snap.MarketID, *snap.Winner); err != nil {
			report.Skips = append(report.Skips, domain.SkipReason{
				MarketID: snap.MarketID,
				Stage:    "settle",
				Reason:   err.Error(),
			})
			continue
		}
		report.ClaimsSettled++
	}
}

// bidMarks extracts the best bid per (market, outcome) as the mark price for
// valuation.
func (e *Engine) bidMarks(snaps map[uint64]domain.Snapshot) map[domain.PositionKey]int64 {
	marks := make(map[domain.PositionKey]int64, len(snaps)*2)
	for id, snap := range snaps {
		marks[domain.PositionKey{MarketID: id, Outcome: domain.OutcomeYes}] = snap.Yes.BidBps
		marks[domain.PositionKey{MarketID: id, Outcome: domain.OutcomeNo}] = snap.No.BidBps
	}
	return marks
}
