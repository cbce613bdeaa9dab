package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// SlogSink emits every cycle report as one structured log record, for
// deployments that collect logs instead of reading the console.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With(slog.String("component", "report"))}
}

func (s *SlogSink) Publish(ctx context.Context, r domain.CycleReport) error {
	s.logger.InfoContext(ctx, "cycle report",
		slog.Uint64("cycle", r.Cycle),
		slog.Int("markets", r.MarketsEvaluated),
		slog.Int("signals", r.SignalsDetected),
		slog.Int("admitted", r.IntentsAdmitted),
		slog.Int("dropped", r.IntentsDropped),
		slog.Int("orders_placed", r.OrdersPlaced),
		slog.Int("orders_cancelled", r.OrdersCancelled),
		slog.Int("claims", r.ClaimsSettled),
		slog.Int("positions", r.OpenPositions),
		slog.Int64("realized_pnl_units", r.RealizedPnLUnits),
		slog.Int64("unrealized_pnl_units", r.UnrealizedPnLUnits),
		slog.Float64("exposure_pct", r.ExposurePct),
		slog.Float64("goal_pct", r.GoalProgressPct),
		slog.Int("skips", len(r.Skips)),
		slog.Duration("took", r.Duration()))
	return nil
}

// ReportPublisher forwards a compact cycle summary through the Notifier, so
// webhook channels see the same numbers the console prints. It only pushes
// cycles in which something happened; idle heartbeats stay off the wire.
type ReportPublisher struct {
	notifier *Notifier
}

func NewReportPublisher(n *Notifier) *ReportPublisher {
	return &ReportPublisher{notifier: n}
}

func (p *ReportPublisher) Publish(ctx context.Context, r domain.CycleReport) error {
	if r.OrdersPlaced == 0 && r.OrdersCancelled == 0 && r.ClaimsSettled == 0 && len(r.Skips) == 0 {
		return nil
	}

	title := fmt.Sprintf("Cycle %d", r.Cycle)
	return p.notifier.Notify(ctx, EventCycle, title, formatReport(r))
}

func formatReport(r domain.CycleReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "markets %d, signals %d, admitted %d, dropped %d\n",
		r.MarketsEvaluated, r.SignalsDetected, r.IntentsAdmitted, r.IntentsDropped)
	fmt.Fprintf(&sb, "orders %d placed, %d cancelled, %d claims settled\n",
		r.OrdersPlaced, r.OrdersCancelled, r.ClaimsSettled)
	fmt.Fprintf(&sb, "positions %d, exposure %.1f%%\n", r.OpenPositions, r.ExposurePct)
	fmt.Fprintf(&sb, "pnl realized $%.2f, unrealized $%.2f\n",
		domain.UnitsToUSDC(r.RealizedPnLUnits), domain.UnitsToUSDC(r.UnrealizedPnLUnits))
	fmt.Fprintf(&sb, "goal %.1f%%, took %s", r.GoalProgressPct, r.Duration().Round(time.Millisecond))

	for _, s := range r.Skips {
		fmt.Fprintf(&sb, "\nskip market %d at %s: %s", s.MarketID, s.Stage, s.Reason)
	}
	return sb.String()
}
