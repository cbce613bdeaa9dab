package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankSignals_RiskFreeFirst(t *testing.T) {
	signals := []EdgeSignal{
		{ID: "d", Kind: SignalDirectional, EdgeBps: 900},
		{ID: "a", Kind: SignalArbitrage, EdgeBps: 150},
		{ID: "s", Kind: SignalSpreadCapture, EdgeBps: -1200},
		{ID: "m", Kind: SignalMintSell, EdgeBps: 80},
	}
	RankSignals(signals)

	// Risk-free class leads regardless of edge size, then larger |edge|.
	assert.Equal(t, "a", signals[0].ID)
	assert.Equal(t, "m", signals[1].ID)
	assert.Equal(t, "s", signals[2].ID)
	assert.Equal(t, "d", signals[3].ID)
}

func TestRankSignals_StableOnTies(t *testing.T) {
	signals := []EdgeSignal{
		{ID: "first", Kind: SignalDirectional, EdgeBps: 300},
		{ID: "second", Kind: SignalDirectional, EdgeBps: 300},
	}
	RankSignals(signals)
	assert.Equal(t, "first", signals[0].ID)
	assert.Equal(t, "second", signals[1].ID)
}

func TestParseKindSet(t *testing.T) {
	all, unknown := ParseKindSet("")
	require.Empty(t, unknown)
	assert.Len(t, all, 5, "empty input enables every kind")

	set, unknown := ParseKindSet("arbitrage, mint_sell")
	require.Empty(t, unknown)
	assert.True(t, set.Enabled(SignalArbitrage))
	assert.True(t, set.Enabled(SignalMintSell))
	assert.False(t, set.Enabled(SignalMomentum))

	_, unknown = ParseKindSet("arbitrage,card_counting")
	assert.Equal(t, []string{"card_counting"}, unknown)
}
