package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Console prints cycle reports to a writer, either as a one-line summary or
// a full table of the cycle's trades and skips.
type Console struct {
	out   io.Writer
	table bool
}

func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter targets an arbitrary writer, for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Publish renders the report in the configured mode.
func (c *Console) Publish(_ context.Context, r domain.CycleReport) error {
	if c.table {
		c.printFull(r)
	} else {
		c.printCompact(r)
	}
	return nil
}

// printCompact fits the whole cycle into one line.
func (c *Console) printCompact(r domain.CycleReport) {
	fmt.Fprintf(c.out, "[%s] cycle %d: %d mkts sig:%d adm:%d drop:%d ord:%d cxl:%d claim:%d | pos:%d exp:%.1f%% pnl $%.2f/$%.2f goal %.1f%% (%s)\n",
		r.FinishedAt.Format("15:04:05"),
		r.Cycle,
		r.MarketsEvaluated,
		r.SignalsDetected,
		r.IntentsAdmitted,
		r.IntentsDropped,
		r.OrdersPlaced,
		r.OrdersCancelled,
		r.ClaimsSettled,
		r.OpenPositions,
		r.ExposurePct,
		domain.UnitsToUSDC(r.RealizedPnLUnits),
		domain.UnitsToUSDC(r.UnrealizedPnLUnits),
		r.GoalProgressPct,
		r.Duration().Round(time.Millisecond))
}

// printFull prints the summary line plus trade and skip tables.
func (c *Console) printFull(r domain.CycleReport) {
	c.printCompact(r)

	if len(r.Trades) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Order", "Market", "Side", "Outcome", "Price", "Amount", "Signal", "Status")
		for _, t := range r.Trades {
			table.Append(
				shortID(t.OrderID),
				fmt.Sprintf("%d", t.MarketID),
				string(t.Side),
				string(t.Outcome),
				fmt.Sprintf("$%.4f", domain.BpsToPrice(t.PriceBps)),
				fmt.Sprintf("$%.2f", domain.UnitsToUSDC(t.AmountUnits)),
				string(t.Signal),
				string(t.Status),
			)
		}
		table.Render()
	}

	if len(r.Skips) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Market", "Stage", "Reason")
		for _, s := range r.Skips {
			table.Append(
				fmt.Sprintf("%d", s.MarketID),
				s.Stage,
				truncate(s.Reason, 70),
			)
		}
		table.Render()
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
