// Package engine drives the trading cycle: snapshot, signal, risk filter,
// execute, settle, reconcile, report. One iteration runs per heartbeat,
// aligned to the ~30 second market lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/ledger"
	"github.com/cardclob/blackjackbot/internal/orders"
	"github.com/cardclob/blackjackbot/internal/risk"
	"github.com/cardclob/blackjackbot/internal/settle"
	"github.com/cardclob/blackjackbot/internal/signal"
	"github.com/cardclob/blackjackbot/internal/snapshot"
)

// Reporter receives the finished report of every cycle.
type Reporter interface {
	Publish(ctx context.Context, r domain.CycleReport) error
}

// Config tunes the cycle loop.
type Config struct {
	Heartbeat  time.Duration
	MaxMarkets int
	Goal       domain.Goal
	// Observe disables every mutating action: no orders, no settlement. The
	// full pipeline still runs and reports what it would have done.
	Observe bool
}

// Engine owns one trading session.
type Engine struct {
	cfg        Config
	aggregator *snapshot.Aggregator
	calc       *signal.Calculator
	governor   *risk.Governor
	manager    *orders.Manager
	settler    *settle.Adapter
	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	fills      domain.FillStore
	reports    domain.ReportStore
	archiver   domain.ReportArchiver
	reporters  []Reporter
	logger     *slog.Logger

	mu         sync.Mutex
	cycleSeq   uint64
	lastPhases map[uint64]domain.MarketPhase
	startedAt  time.Time
	startUnits int64
}

// New wires an Engine. archiver may be nil; reporters may be empty.
func New(
	cfg Config,
	aggregator *snapshot.Aggregator,
	calc *signal.Calculator,
	governor *risk.Governor,
	manager *orders.Manager,
	settler *settle.Adapter,
	l *ledger.Ledger,
	reconciler *ledger.Reconciler,
	fills domain.FillStore,
	reports domain.ReportStore,
	archiver domain.ReportArchiver,
	reporters []Reporter,
	logger *slog.Logger,
) *Engine {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		aggregator: aggregator,
		calc:       calc,
		governor:   governor,
		manager:    manager,
		settler:    settler,
		ledger:     l,
		reconciler: reconciler,
		fills:      fills,
		reports:    reports,
		archiver:   archiver,
		reporters:  reporters,
		logger:     logger.With(slog.String("component", "engine")),
		lastPhases: make(map[uint64]domain.MarketPhase),
	}
}

// Run executes cycles until the context is cancelled, the goal is achieved,
// or a deadline-bound goal expires. A crash mid-cycle never corrupts the
// ledger: the next cycle re-derives every intent from fresh state.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = time.Now().UTC()

	// Establish starting capital before the first cycle.
	if _, err := e.reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("engine: initial reconciliation: %w", err)
	}
	e.startUnits = e.ledger.View(nil, 0).TotalCapitalUnits()
	e.logger.Info("session started",
		slog.Int64("start_capital_units", e.startUnits),
		slog.Duration("heartbeat", e.cfg.Heartbeat),
		slog.Bool("observe", e.cfg.Observe))

	ticker := time.NewTicker(e.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		report, err := e.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("cycle failed", slog.String("error", err.Error()))
		} else if e.goalReached(report) {
			e.logger.Info("profit goal achieved", slog.Uint64("cycle", report.Cycle))
			return nil
		}

		if e.cfg.Goal.Expired(time.Now().UTC()) {
			e.logger.Warn("goal deadline passed, stopping session")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OnFill books a fill arriving from the venue's event stream. Fills mutate
// positions only here and in status sync, never from in-flight orders.
func (e *Engine) OnFill(ctx context.Context, f domain.Fill) {
	if err := e.ledger.ApplyFill(f); err != nil {
		e.logger.Error("fill rejected by ledger",
			slog.String("order_id", f.OrderID),
			slog.String("error", err.Error()))
		e.ledger.Halt(f.MarketID, fmt.Sprintf("fill %s inconsistent: %v", f.OrderID, err))
		return
	}
	if err := e.fills.Record(ctx, f); err != nil {
		e.logger.Error("fill persistence failed",
			slog.String("order_id", f.OrderID),
			slog.String("error", err.Error()))
	}
}

// OnPhaseChange reacts to a push-side phase transition between heartbeats.
// A lock transition cancels the market's live orders immediately instead of
// waiting for the next cycle; the cancel wins any race with an in-progress
// submission because both paths serialize on the per-market lock.
func (e *Engine) OnPhaseChange(ctx context.Context, marketID uint64, phase domain.MarketPhase, winner *domain.Outcome) {
	e.mu.Lock()
	prev, seen := e.lastPhases[marketID]
	if seen && !prev.CanTransition(phase) {
		e.mu.Unlock()
		e.logger.Warn("ignoring phase regression",
			slog.Uint64("market_id", marketID),
			slog.String("from", string(prev)),
			slog.String("to", string(phase)))
		return
	}
	e.lastPhases[marketID] = phase
	e.mu.Unlock()

	if phase == domain.PhaseBetting || e.cfg.Observe {
		return
	}

	cancelled, err := e.manager.CancelAllForMarket(ctx, marketID)
	if err != nil {
		e.logger.Error("lock sweep failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()))
	}
	if cancelled > 0 {
		e.logger.Info("orders cancelled on phase transition",
			slog.Uint64("market_id", marketID),
			slog.String("phase", string(phase)),
			slog.Int("count", cancelled))
	}
	e.calc.Forget(marketID)
}

// goalReached checks the session goal against the cycle's closing view.
func (e *Engine) goalReached(report domain.CycleReport) bool {
	view := e.ledger.View(nil, report.Cycle)
	return e.cfg.Goal.Achieved(view, e.startUnits, time.Since(e.startedAt))
}

// GoalAchieved reports whether the session goal is met against the ledger's
// current state. Callers use it after Run returns to tell a met goal apart
// from a deadline expiry.
func (e *Engine) GoalAchieved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := e.ledger.View(nil, e.cycleSeq)
	return e.cfg.Goal.Achieved(view, e.startUnits, time.Since(e.startedAt))
}

// goalProgress returns percentage progress toward the goal, clamped to 0+.
func (e *Engine) goalProgress(view domain.LedgerView) float64 {
	pnl := float64(view.RealizedPnLUnits + view.UnrealizedPnLUnits)
	var progress float64
	switch e.cfg.Goal.Mode {
	case domain.GoalTargetAmount:
		if e.cfg.Goal.AmountUnits > 0 {
			progress = pnl / float64(e.cfg.Goal.AmountUnits) * 100
		}
	case domain.GoalTargetMultiple:
		if e.startUnits > 0 && e.cfg.Goal.Multiple > 1 {
			gained := float64(view.TotalCapitalUnits())/float64(e.startUnits) - 1
			progress = gained / (e.cfg.Goal.Multiple - 1) * 100
		}
	case domain.GoalTargetRate:
		hours := time.Since(e.startedAt).Hours()
		if hours > 0 && e.cfg.Goal.RateUnits > 0 {
			progress = pnl / hours / float64(e.cfg.Goal.RateUnits) * 100
		}
	}
	if progress < 0 {
		return 0
	}
	return progress
}

// emit distributes the finished cycle report to the store, the archive, and
// every reporter. Reporting failures never fail the cycle.
func (e *Engine) emit(ctx context.Context, report domain.CycleReport) {
	if err := e.reports.Save(ctx, report); err != nil {
		e.logger.Error("report persistence failed", slog.String("error", err.Error()))
	}
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, report); err != nil {
			e.logger.Error("report archive failed", slog.String("error", err.Error()))
		}
	}
	for _, r := range e.reporters {
		if err := r.Publish(ctx, report); err != nil {
			e.logger.Error("report publish failed", slog.String("error", err.Error()))
		}
	}
}
