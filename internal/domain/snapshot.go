package domain

import "time"

// Quote is the top of book for one outcome, in basis points. A zero bid or ask
// means that side of the book is empty.
type Quote struct {
	BidBps       int64
	AskBps       int64
	BidDepthUnits int64 // fillable amount at the best bid, smallest currency unit
	AskDepthUnits int64 // fillable amount at the best ask
}

// HasBothSides reports whether the quote is two-sided.
func (q Quote) HasBothSides() bool {
	return q.BidBps > 0 && q.AskBps > 0
}

// SpreadBps returns ask minus bid, or 0 when the book is one-sided.
func (q Quote) SpreadBps() int64 {
	if !q.HasBothSides() {
		return 0
	}
	return q.AskBps - q.BidBps
}

// Snapshot is a consistent read of one market's state at RetrievedAt: phase,
// top-of-book for both outcomes, fair-price estimate, and volume stats.
// Snapshots are ephemeral; consumers must reject them once older than the
// configured staleness threshold.
type Snapshot struct {
	MarketID    uint64
	HandID      string
	Phase       MarketPhase
	Winner      *Outcome
	Yes         Quote
	No          Quote
	FairYesBps  int64 // 0 when the oracle has no estimate
	FairNoBps   int64
	HasLiquidity bool
	VolumeUnits int64
	TradeCount  int
	LastTradeBps int64
	RetrievedAt time.Time
}

// QuoteFor returns the quote for the given outcome.
func (s Snapshot) QuoteFor(o Outcome) Quote {
	if o == OutcomeYes {
		return s.Yes
	}
	return s.No
}

// FairBpsFor returns the fair-price estimate for the given outcome.
func (s Snapshot) FairBpsFor(o Outcome) int64 {
	if o == OutcomeYes {
		return s.FairYesBps
	}
	return s.FairNoBps
}

// Stale reports whether the snapshot is older than maxAge as of now.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.RetrievedAt) > maxAge
}

// BpsToPrice converts a basis-point price to its display value in [0, 1].
func BpsToPrice(bps int64) float64 {
	return float64(bps) / float64(PricePrecision)
}

// PriceToBps converts a display price in [0, 1] to basis points.
func PriceToBps(price float64) int64 {
	return int64(price * float64(PricePrecision))
}

// UnitsToUSDC converts a smallest-unit amount to display USDC.
func UnitsToUSDC(units int64) float64 {
	return float64(units) / float64(AmountScale)
}

// USDCToUnits converts display USDC to a smallest-unit amount.
func USDCToUnits(usdc float64) int64 {
	return int64(usdc * float64(AmountScale))
}
