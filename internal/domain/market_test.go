package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketPhase_CanTransition(t *testing.T) {
	cases := []struct {
		from, to MarketPhase
		ok       bool
	}{
		{PhaseBetting, PhaseBetting, true},
		{PhaseBetting, PhaseLocked, true},
		{PhaseBetting, PhaseResolved, true},
		{PhaseLocked, PhaseResolved, true},
		{PhaseLocked, PhaseLocked, true},
		{PhaseLocked, PhaseBetting, false},
		{PhaseResolved, PhaseLocked, false},
		{PhaseResolved, PhaseBetting, false},
		{PhaseBetting, MarketPhase("SHUFFLING"), false},
		{MarketPhase(""), PhaseBetting, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestOutcome_Opposite(t *testing.T) {
	assert.Equal(t, OutcomeNo, OutcomeYes.Opposite())
	assert.Equal(t, OutcomeYes, OutcomeNo.Opposite())
}

func TestMarket_Claimable(t *testing.T) {
	winner := OutcomeYes

	assert.False(t, Market{Phase: PhaseResolved}.Claimable(), "no winner yet")
	assert.False(t, Market{Phase: PhaseLocked, Winner: &winner}.Claimable())
	assert.True(t, Market{Phase: PhaseResolved, Winner: &winner}.Claimable())
}

func TestPriceConversions(t *testing.T) {
	assert.Equal(t, int64(4500), PriceToBps(0.45))
	assert.InDelta(t, 0.45, BpsToPrice(4500), 1e-9)
	assert.Equal(t, int64(10_500_000), USDCToUnits(10.5))
	assert.InDelta(t, 10.5, UnitsToUSDC(10_500_000), 1e-9)
}
