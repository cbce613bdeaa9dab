package domain

import "time"

// Position is the holding in one (market, outcome). The venue does not
// support short exposure, so Units is never negative. Positions are mutated
// only by confirmed fills and mint/merge/claim settlement events, never by
// in-flight orders.
type Position struct {
	MarketID   uint64
	Outcome    Outcome
	Units      int64 // share quantity, smallest currency unit scale
	AvgCostBps int64 // weighted average entry price
	UpdatedAt  time.Time
}

// ValueUnits is the mark-to-market value of the position at markBps.
func (p Position) ValueUnits(markBps int64) int64 {
	return p.Units * markBps / PricePrecision
}

// CostUnits is the capital paid for the position at its average cost.
func (p Position) CostUnits() int64 {
	return p.Units * p.AvgCostBps / PricePrecision
}

// UnrealizedUnits is the mark-to-market gain or loss at markBps.
func (p Position) UnrealizedUnits(markBps int64) int64 {
	return p.ValueUnits(markBps) - p.CostUnits()
}

// LossFraction returns the mark-to-market loss as a fraction of cost,
// positive when the position is under water. Zero for empty or free
// positions.
func (p Position) LossFraction(markBps int64) float64 {
	cost := p.CostUnits()
	if cost <= 0 {
		return 0
	}
	loss := cost - p.ValueUnits(markBps)
	if loss <= 0 {
		return 0
	}
	return float64(loss) / float64(cost)
}

// PositionKey identifies a position within the ledger.
type PositionKey struct {
	MarketID uint64
	Outcome  Outcome
}

// LedgerView is a deterministic read of the ledger at one instant: balances,
// position valuation, P&L, and the exposure ratio the risk governor clamps
// against. It is recomputed from positions, orders, and chain balances, never
// hand-edited.
type LedgerView struct {
	WalletUnits        int64 // USDC held in the hot wallet
	VaultUnits         int64 // USDC held in the custodial vault
	ReservedUnits      int64 // notional committed to live orders
	PositionValueUnits int64 // sum of position market values ($1 parity floor)
	RealizedPnLUnits   int64
	UnrealizedPnLUnits int64
	CycleSeq           uint64
	RetrievedAt        time.Time
}

// TotalCapitalUnits is everything the session controls: free balances plus
// deployed capital.
func (v LedgerView) TotalCapitalUnits() int64 {
	return v.WalletUnits + v.VaultUnits + v.ReservedUnits + v.PositionValueUnits
}

// DeployedUnits is capital committed to open positions and live orders.
func (v LedgerView) DeployedUnits() int64 {
	return v.ReservedUnits + v.PositionValueUnits
}

// AvailableUnits is capital free to commit to new orders.
func (v LedgerView) AvailableUnits() int64 {
	return v.VaultUnits
}

// ExposureRatio is deployed capital over total capital, in [0, 1]. Zero when
// the session holds no capital at all.
func (v LedgerView) ExposureRatio() float64 {
	total := v.TotalCapitalUnits()
	if total <= 0 {
		return 0
	}
	return float64(v.DeployedUnits()) / float64(total)
}
