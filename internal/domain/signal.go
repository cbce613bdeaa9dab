package domain

import (
	"sort"
	"strings"
	"time"
)

// SignalKind identifies the edge-detection algorithm that produced a signal.
type SignalKind string

const (
	SignalArbitrage     SignalKind = "arbitrage"      // buy both sides below $1
	SignalMintSell      SignalKind = "mint_sell"      // mint at $1, sell both sides above it
	SignalSpreadCapture SignalKind = "spread_capture" // quote inside the spread on one outcome
	SignalDirectional   SignalKind = "directional"    // fair-price vs market mispricing
	SignalMomentum      SignalKind = "momentum"       // recent trade-flow imbalance
)

// RiskFree reports whether the signal's profit does not depend on the
// fair-price oracle being correct. Risk-free signals outrank probabilistic
// ones when both target the same market.
func (k SignalKind) RiskFree() bool {
	return k == SignalArbitrage || k == SignalMintSell
}

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalArbitrage, SignalMintSell, SignalSpreadCapture, SignalDirectional, SignalMomentum:
		return true
	}
	return false
}

// EdgeSignal is a scored trading opportunity. Signals are recomputed every
// cycle from a fresh snapshot and never persisted as stale truth.
type EdgeSignal struct {
	ID         string
	Kind       SignalKind
	MarketID   uint64
	Outcome    Outcome // the mispriced side for one-sided kinds; OutcomeYes for pair kinds
	Side       OrderSide
	EdgeBps    int64 // signed edge magnitude in basis points of $1
	Snapshot   Snapshot
	Reason     string
	DetectedAt time.Time
}

// RankSignals orders signals best-first: risk-free class before probabilistic,
// then by larger absolute edge. The sort is stable so equal signals keep their
// detection order.
func RankSignals(signals []EdgeSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Kind.RiskFree() != b.Kind.RiskFree() {
			return a.Kind.RiskFree()
		}
		return absBps(a.EdgeBps) > absBps(b.EdgeBps)
	})
}

func absBps(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// KindSet is the set of signal kinds enabled for a session.
type KindSet map[SignalKind]bool

// ParseKindSet parses a comma-separated list of signal kind tags into a
// KindSet. Unknown tags are reported back to the caller; an empty input
// enables every kind.
func ParseKindSet(csv string) (KindSet, []string) {
	set := make(KindSet)
	var unknown []string

	trimmed := strings.TrimSpace(csv)
	if trimmed == "" {
		for _, k := range []SignalKind{SignalArbitrage, SignalMintSell, SignalSpreadCapture, SignalDirectional, SignalMomentum} {
			set[k] = true
		}
		return set, nil
	}

	for _, tag := range strings.Split(trimmed, ",") {
		k := SignalKind(strings.TrimSpace(tag))
		if k == "" {
			continue
		}
		if !k.Valid() {
			unknown = append(unknown, string(k))
			continue
		}
		set[k] = true
	}
	return set, unknown
}

// Enabled reports whether the kind is in the set.
func (s KindSet) Enabled(k SignalKind) bool {
	return s[k]
}
