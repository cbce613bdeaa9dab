package domain

// RiskLimits is the immutable per-session risk configuration. Aggressiveness
// and risk-tolerance tiers are both presets producing one of these records;
// the governor reads only the record, never the tier names.
type RiskLimits struct {
	MaxPositionUnits  int64   // max position notional per (market, outcome)
	MaxExposurePct    float64 // max deployed / total capital, in percent
	StopLossPct       float64 // mark-to-market loss triggering a forced close, in percent
	DefaultOrderUnits int64   // order size when a signal does not imply one
	MinEdgeBps        int64   // signals below this edge are dropped outright
	StopLossPriority  bool    // stop-loss closes run ahead of new intents
}

// SizingBandPct returns the fraction of available capital (in percent) an
// intent with the given edge may commit. Edges above 10% unlock the widest
// band, 5-10% the middle band; anything below MinEdgeBps returns 0.
func (l RiskLimits) SizingBandPct(edgeBps int64) float64 {
	if edgeBps < l.MinEdgeBps {
		return 0
	}
	switch {
	case edgeBps > 1000:
		return 20
	case edgeBps >= 500:
		return 10
	default:
		return 5
	}
}

// Valid reports whether the limits are complete enough to trade with.
func (l RiskLimits) Valid() bool {
	return l.MaxPositionUnits > 0 &&
		l.MaxExposurePct > 0 && l.MaxExposurePct <= 100 &&
		l.StopLossPct > 0 &&
		l.DefaultOrderUnits > 0
}
