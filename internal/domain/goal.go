package domain

import "time"

// GoalMode names the shape of an operator profit goal. The free-text operator
// intent is parsed once at session start into a Goal record; everything
// downstream reads only the record.
type GoalMode string

const (
	GoalTargetAmount   GoalMode = "target_amount"   // reach an absolute P&L, optionally by a deadline
	GoalTargetMultiple GoalMode = "target_multiple" // multiply starting capital by a factor
	GoalTargetRate     GoalMode = "target_rate"     // sustain a P&L rate per hour
)

// Goal is the structured session profit target.
type Goal struct {
	Mode        GoalMode
	AmountUnits int64      // target_amount: cumulative realized+unrealized P&L
	Multiple    float64    // target_multiple: total capital / starting capital
	RateUnits   int64      // target_rate: P&L units per hour
	Deadline    *time.Time // optional for target_amount
}

// Achieved reports whether the goal has been met given the current ledger
// view, the session's starting capital, and elapsed session time.
func (g Goal) Achieved(view LedgerView, startCapitalUnits int64, elapsed time.Duration) bool {
	pnl := view.RealizedPnLUnits + view.UnrealizedPnLUnits

	switch g.Mode {
	case GoalTargetAmount:
		return pnl >= g.AmountUnits
	case GoalTargetMultiple:
		if startCapitalUnits <= 0 {
			return false
		}
		return float64(view.TotalCapitalUnits())/float64(startCapitalUnits) >= g.Multiple
	case GoalTargetRate:
		hours := elapsed.Hours()
		if hours <= 0 {
			return false
		}
		return float64(pnl)/hours >= float64(g.RateUnits)
	}
	return false
}

// Expired reports whether a deadline-bound goal can no longer be met in time.
func (g Goal) Expired(now time.Time) bool {
	return g.Deadline != nil && now.After(*g.Deadline)
}
