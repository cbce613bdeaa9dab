package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardclob/blackjackbot/internal/domain"
)

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionUnits:  50_000_000, // 50 USDC
		MaxExposurePct:    70,
		StopLossPct:       20,
		DefaultOrderUnits: 10_000_000,
		MinEdgeBps:        100,
		StopLossPriority:  true,
	}
}

func newTestGovernor(limits domain.RiskLimits) *Governor {
	return NewGovernor(limits, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bettingSnapshot(marketID uint64) domain.Snapshot {
	return domain.Snapshot{
		MarketID:    marketID,
		Phase:       domain.PhaseBetting,
		Yes:         domain.Quote{BidBps: 4400, AskBps: 4600},
		No:          domain.Quote{BidBps: 5300, AskBps: 5500},
		RetrievedAt: time.Now().UTC(),
	}
}

func buyIntent(marketID uint64, priceBps, units, edgeBps int64) domain.OrderIntent {
	return domain.OrderIntent{
		ID:          "intent-1",
		MarketID:    marketID,
		Side:        domain.OrderSideBuy,
		Outcome:     domain.OutcomeYes,
		PriceBps:    priceBps,
		AmountUnits: units,
		Signal:      domain.SignalArbitrage,
		EdgeBps:     edgeBps,
		CreatedAt:   time.Now().UTC(),
	}
}

func richView() domain.LedgerView {
	return domain.LedgerView{VaultUnits: 1_000_000_000}
}

func TestPlanIntents_ArbitragePair(t *testing.T) {
	g := newTestGovernor(testLimits())

	snap := bettingSnapshot(7)
	snap.Yes.AskBps = 4500
	snap.No.AskBps = 5200
	sig := domain.EdgeSignal{
		Kind:     domain.SignalArbitrage,
		MarketID: 7,
		EdgeBps:  300,
		Snapshot: snap,
	}

	intents := g.PlanIntents([]domain.EdgeSignal{sig}, time.Now())
	require.Len(t, intents, 2)

	assert.Equal(t, domain.OutcomeYes, intents[0].Outcome)
	assert.Equal(t, int64(4500), intents[0].PriceBps)
	assert.Equal(t, domain.OutcomeNo, intents[1].Outcome)
	assert.Equal(t, int64(5200), intents[1].PriceBps)
	for _, it := range intents {
		assert.Equal(t, domain.OrderSideBuy, it.Side)
		assert.Equal(t, int64(300), it.EdgeBps)
		assert.Equal(t, int64(10_000_000), it.AmountUnits)
		assert.NotEmpty(t, it.ID)
	}
}

func TestPlanIntents_MintSellPair(t *testing.T) {
	g := newTestGovernor(testLimits())

	snap := bettingSnapshot(7)
	snap.Yes.BidBps = 5100
	snap.No.BidBps = 5300
	sig := domain.EdgeSignal{
		Kind:     domain.SignalMintSell,
		MarketID: 7,
		EdgeBps:  400,
		Snapshot: snap,
	}

	intents := g.PlanIntents([]domain.EdgeSignal{sig}, time.Now())
	require.Len(t, intents, 2)
	assert.Equal(t, domain.OrderSideSell, intents[0].Side)
	assert.Equal(t, int64(5100), intents[0].PriceBps)
	assert.Equal(t, int64(5300), intents[1].PriceBps)
}

func TestPlanIntents_SingleSidedUsesActingSide(t *testing.T) {
	g := newTestGovernor(testLimits())

	snap := bettingSnapshot(7)
	sig := domain.EdgeSignal{
		Kind:     domain.SignalDirectional,
		MarketID: 7,
		Outcome:  domain.OutcomeNo,
		Side:     domain.OrderSideSell,
		EdgeBps:  150,
		Snapshot: snap,
	}

	intents := g.PlanIntents([]domain.EdgeSignal{sig}, time.Now())
	require.Len(t, intents, 1)
	assert.Equal(t, int64(5300), intents[0].PriceBps, "sells price at the bid")
}

func TestGovern_PhaseGate(t *testing.T) {
	g := newTestGovernor(testLimits())

	locked := bettingSnapshot(7)
	locked.Phase = domain.PhaseLocked

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 4500, 10_000_000, 300)},
		Snapshots: map[uint64]domain.Snapshot{7: locked},
		View:      richView(),
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, "risk", res.Skips[0].Stage)
	assert.Contains(t, res.Skips[0].Reason, "betting phase")
}

func TestGovern_MissingSnapshotSkips(t *testing.T) {
	g := newTestGovernor(testLimits())

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 4500, 10_000_000, 300)},
		Snapshots: map[uint64]domain.Snapshot{},
		View:      richView(),
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted)
	assert.Len(t, res.Skips, 1)
}

func TestGovern_ZeroPriceSkips(t *testing.T) {
	g := newTestGovernor(testLimits())

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 0, 10_000_000, 300)},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      richView(),
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted)
	require.Len(t, res.Skips, 1)
	assert.Contains(t, res.Skips[0].Reason, "empty quote")
}

func TestGovern_EdgeBelowMinimumDropped(t *testing.T) {
	g := newTestGovernor(testLimits())

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 4500, 10_000_000, 50)},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      richView(),
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted)
	require.Len(t, res.Skips, 1)
	assert.Contains(t, res.Skips[0].Reason, "edge below minimum")
}

func TestGovern_SizingBandClampsQuantity(t *testing.T) {
	g := newTestGovernor(testLimits())

	// 300bps edge sits in the 5% band. 5% of the 100 USDC vault is 5 USDC of
	// notional; a 20-share order at $0.50 wants 10 USDC and is halved.
	view := domain.LedgerView{VaultUnits: 100_000_000}
	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 5000, 20_000_000, 300)},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      view,
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 1)
	assert.Equal(t, int64(10_000_000), res.Admitted[0].AmountUnits)
}

func TestGovern_PositionCapNeverExceeded(t *testing.T) {
	g := newTestGovernor(testLimits())

	// Existing cost 45 USDC against the 50 USDC cap leaves 5 USDC headroom.
	key := domain.PositionKey{MarketID: 7, Outcome: domain.OutcomeYes}
	positions := map[domain.PositionKey]domain.Position{
		key: {MarketID: 7, Outcome: domain.OutcomeYes, Units: 90_000_000, AvgCostBps: 5000},
	}

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 5000, 20_000_000, 300)},
		Positions: positions,
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      richView(),
		Edges:     map[domain.PositionKey]int64{key: 300},
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 1)
	got := res.Admitted[0]
	assert.Equal(t, int64(10_000_000), got.AmountUnits)
	assert.LessOrEqual(t, positions[key].CostUnits()+got.NotionalUnits(), g.Limits().MaxPositionUnits)
}

func TestGovern_PositionCapAccumulatesAcrossIntents(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionUnits = 8_000_000
	g := newTestGovernor(limits)

	first := buyIntent(7, 5000, 10_000_000, 300)
	second := buyIntent(7, 5000, 10_000_000, 300)
	second.ID = "intent-2"

	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{first, second},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      richView(),
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 2)
	assert.Equal(t, int64(10_000_000), res.Admitted[0].AmountUnits)
	assert.Equal(t, int64(6_000_000), res.Admitted[1].AmountUnits, "second intent fits only the 3 USDC left under the cap")
}

func TestGovern_ExposureClamp(t *testing.T) {
	g := newTestGovernor(testLimits())

	// Total capital 100 USDC with 65 already deployed; the 70% cap leaves
	// 5 USDC of headroom for a 10 USDC intent.
	view := domain.LedgerView{VaultUnits: 35_000_000, PositionValueUnits: 65_000_000}
	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 5000, 20_000_000, 1200)},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      view,
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 1)
	assert.Equal(t, int64(10_000_000), res.Admitted[0].AmountUnits)
}

func TestGovern_NoHeadroomSkips(t *testing.T) {
	g := newTestGovernor(testLimits())

	// Fully deployed at the cap already.
	view := domain.LedgerView{VaultUnits: 30_000_000, PositionValueUnits: 70_000_000}
	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{buyIntent(7, 5000, 20_000_000, 1200)},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      view,
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted)
	require.Len(t, res.Skips, 1)
	assert.Contains(t, res.Skips[0].Reason, "no capital headroom")
}

func TestGovern_StopLossInjectedAndPrioritized(t *testing.T) {
	g := newTestGovernor(testLimits())

	// 10 shares bought at $0.40 marked at $0.30 is a 25% loss, beyond the
	// 20% stop, and the originating edge is gone.
	key := domain.PositionKey{MarketID: 7, Outcome: domain.OutcomeYes}
	snap := bettingSnapshot(7)
	snap.Yes.BidBps = 3000

	res := g.Govern(Input{
		Intents: []domain.OrderIntent{buyIntent(9, 4500, 10_000_000, 300)},
		Positions: map[domain.PositionKey]domain.Position{
			key: {MarketID: 7, Outcome: domain.OutcomeYes, Units: 10_000_000, AvgCostBps: 4000},
		},
		Snapshots: map[uint64]domain.Snapshot{7: snap, 9: bettingSnapshot(9)},
		View:      richView(),
		Edges:     map[domain.PositionKey]int64{},
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 2)
	close := res.Admitted[0]
	assert.True(t, close.Closing, "stop loss runs ahead of new intents")
	assert.Equal(t, domain.OrderSideSell, close.Side)
	assert.Equal(t, uint64(7), close.MarketID)
	assert.Equal(t, int64(3000), close.PriceBps)
	assert.Equal(t, int64(10_000_000), close.AmountUnits)
}

func TestGovern_StopLossHeldWhileEdgeLives(t *testing.T) {
	g := newTestGovernor(testLimits())

	key := domain.PositionKey{MarketID: 7, Outcome: domain.OutcomeYes}
	snap := bettingSnapshot(7)
	snap.Yes.BidBps = 3000

	res := g.Govern(Input{
		Positions: map[domain.PositionKey]domain.Position{
			key: {MarketID: 7, Outcome: domain.OutcomeYes, Units: 10_000_000, AvgCostBps: 4000},
		},
		Snapshots: map[uint64]domain.Snapshot{7: snap},
		View:      richView(),
		Edges:     map[domain.PositionKey]int64{key: 250},
		Now:       time.Now(),
	})

	assert.Empty(t, res.Admitted, "live edge keeps the position open")
}

func TestGovern_ClosingBypassesCaps(t *testing.T) {
	g := newTestGovernor(testLimits())

	closing := domain.OrderIntent{
		ID:          "close-1",
		MarketID:    7,
		Side:        domain.OrderSideSell,
		Outcome:     domain.OutcomeYes,
		PriceBps:    3000,
		AmountUnits: 200_000_000,
		Closing:     true,
	}

	// Zero capital anywhere: an opening intent would be dropped, the close
	// still goes through.
	res := g.Govern(Input{
		Intents:   []domain.OrderIntent{closing},
		Snapshots: map[uint64]domain.Snapshot{7: bettingSnapshot(7)},
		View:      domain.LedgerView{},
		Now:       time.Now(),
	})

	require.Len(t, res.Admitted, 1)
	assert.Equal(t, int64(200_000_000), res.Admitted[0].AmountUnits)
}
