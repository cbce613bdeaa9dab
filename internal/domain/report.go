package domain

import "time"

// SkipReason attributes one skipped opportunity or failed action to an entry
// of the error taxonomy. Silent skips are not permitted.
type SkipReason struct {
	MarketID uint64 `json:"market_id"`
	Stage    string `json:"stage"` // "snapshot", "signal", "risk", "execute", "settle", "reconcile"
	Reason   string `json:"reason"`
}

// TradeRecord summarizes one order executed during a cycle.
type TradeRecord struct {
	OrderID     string     `json:"order_id"`
	MarketID    uint64     `json:"market_id"`
	Side        OrderSide  `json:"side"`
	Outcome     Outcome    `json:"outcome"`
	PriceBps    int64      `json:"price_bps"`
	AmountUnits int64      `json:"amount_units"`
	Signal      SignalKind `json:"signal"`
	Status      OrderStatus `json:"status"`
}

// CycleReport is the per-cycle operator report, stable and structured so a
// dashboard or log collector can consume it.
type CycleReport struct {
	Cycle            uint64        `json:"cycle"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	MarketsEvaluated int           `json:"markets_evaluated"`
	SignalsDetected  int           `json:"signals_detected"`
	IntentsAdmitted  int           `json:"intents_admitted"`
	IntentsDropped   int           `json:"intents_dropped"`
	OrdersPlaced     int           `json:"orders_placed"`
	OrdersCancelled  int           `json:"orders_cancelled"`
	ClaimsSettled    int           `json:"claims_settled"`
	OpenPositions    int           `json:"open_positions"`
	RealizedPnLUnits int64         `json:"realized_pnl_units"`
	UnrealizedPnLUnits int64       `json:"unrealized_pnl_units"`
	ExposurePct      float64       `json:"exposure_pct"`
	GoalProgressPct  float64       `json:"goal_progress_pct"`
	Trades           []TradeRecord `json:"trades"`
	Skips            []SkipReason  `json:"skips"`
}

// Duration is the wall time the cycle took.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
