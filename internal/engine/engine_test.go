package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardclob/blackjackbot/internal/crypto"
	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/ledger"
	"github.com/cardclob/blackjackbot/internal/orders"
	"github.com/cardclob/blackjackbot/internal/risk"
	"github.com/cardclob/blackjackbot/internal/settle"
	"github.com/cardclob/blackjackbot/internal/signal"
	"github.com/cardclob/blackjackbot/internal/snapshot"
	"github.com/cardclob/blackjackbot/internal/store/memory"
)

const (
	testKeyHex       = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testExchangeAddr = "0xC628e81B506b572391669339c2AbaCFafa0d95dD"
)

// testVenue serves both the market-data and order APIs from fixtures.
type testVenue struct {
	mu        sync.Mutex
	markets   []domain.Market
	snaps     map[uint64]domain.Snapshot
	state     domain.AccountState
	submitted []domain.Order
	nextID    int
}

func (v *testVenue) ListMarkets(context.Context) ([]domain.Market, error) {
	return v.markets, nil
}

func (v *testVenue) FetchSnapshot(_ context.Context, marketID uint64) (domain.Snapshot, error) {
	return v.snaps[marketID], nil
}

func (v *testVenue) FetchState(context.Context, string) (domain.AccountState, error) {
	return v.state, nil
}

func (v *testVenue) SubmitOrder(_ context.Context, o domain.Order) (string, domain.OrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted = append(v.submitted, o)
	v.nextID++
	return "venue-" + string(rune('0'+v.nextID)), domain.OrderStatusSubmitted, nil
}

func (v *testVenue) CancelOrder(context.Context, string, domain.CancelAuthorization) (domain.OrderStatus, error) {
	return domain.OrderStatusCancelled, nil
}

func (v *testVenue) OrderStatus(context.Context, string) (domain.OrderStatus, int64, error) {
	return domain.OrderStatusSubmitted, 0, nil
}

func (v *testVenue) submitCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.submitted)
}

// testChain reports fixed balances and empty share holdings.
type testChain struct {
	vault int64
}

func (c *testChain) VaultBalance(context.Context, string) (int64, error)  { return c.vault, nil }
func (c *testChain) WalletBalance(context.Context, string) (int64, error) { return 0, nil }
func (c *testChain) Shares(context.Context, uint64, string) (domain.SharePair, error) {
	return domain.SharePair{}, nil
}
func (c *testChain) Deposit(context.Context, int64) (string, error)          { return "0xdep", nil }
func (c *testChain) Withdraw(context.Context, int64) (string, error)         { return "0xwit", nil }
func (c *testChain) Mint(context.Context, uint64, int64) (string, error)     { return "0xmin", nil }
func (c *testChain) Merge(context.Context, uint64, int64) (string, error)    { return "0xmer", nil }
func (c *testChain) Claim(context.Context, uint64) (string, error)           { return "0xclm", nil }
func (c *testChain) Transfer(context.Context, string, int64) (string, error) { return "0xtrf", nil }

type capturingReporter struct {
	mu      sync.Mutex
	reports []domain.CycleReport
}

func (r *capturingReporter) Publish(_ context.Context, report domain.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func arbitrageSnapshot(marketID uint64) domain.Snapshot {
	return domain.Snapshot{
		MarketID:    marketID,
		Phase:       domain.PhaseBetting,
		Yes:         domain.Quote{BidBps: 4300, AskBps: 4500},
		No:          domain.Quote{BidBps: 5000, AskBps: 5200},
		RetrievedAt: time.Now().UTC(),
	}
}

func newTestEngine(t *testing.T, venue *testVenue, chain *testChain, observe bool) (*Engine, *ledger.Ledger, *capturingReporter, *memory.OrderStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := crypto.NewSigner(testKeyHex, 10143, testExchangeAddr)
	require.NoError(t, err)

	l := ledger.New(logger)
	reconciler := ledger.NewReconciler(l, venue, chain, signer.Address().Hex(), logger)

	enabled, unknown := domain.ParseKindSet("arbitrage")
	require.Empty(t, unknown)
	calc := signal.NewCalculator(enabled, nil, time.Minute, 10, logger)

	governor := risk.NewGovernor(domain.RiskLimits{
		MaxPositionUnits:  50_000_000,
		MaxExposurePct:    70,
		StopLossPct:       20,
		DefaultOrderUnits: 5_000_000,
		MinEdgeBps:        100,
		StopLossPriority:  true,
	}, logger)

	orderStore := memory.NewOrderStore()
	manager := orders.NewManager(signer, venue, orderStore, 30*time.Second, logger)
	settler := settle.New(chain, l, signer.Address().Hex(), logger)
	agg := snapshot.New(venue, nil, 30*time.Second, time.Second, logger)
	reporter := &capturingReporter{}

	eng := New(
		Config{
			Heartbeat: time.Second,
			Goal:      domain.Goal{Mode: domain.GoalTargetAmount, AmountUnits: 1_000_000_000},
			Observe:   observe,
		},
		agg, calc, governor, manager, settler, l, reconciler,
		memory.NewFillStore(), memory.NewReportStore(), nil,
		[]Reporter{reporter}, logger,
	)
	return eng, l, reporter, orderStore
}

func TestRunCycle_ArbitragePlacesPair(t *testing.T) {
	venue := &testVenue{
		markets: []domain.Market{{ID: 7, Phase: domain.PhaseBetting}},
		snaps:   map[uint64]domain.Snapshot{7: arbitrageSnapshot(7)},
	}
	chain := &testChain{vault: 100_000_000}
	eng, l, reporter, _ := newTestEngine(t, venue, chain, false)

	report, err := eng.runCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.MarketsEvaluated)
	assert.Equal(t, 1, report.SignalsDetected)
	assert.Equal(t, 2, report.IntentsAdmitted, "arbitrage expands to one buy per outcome")
	assert.Equal(t, 2, report.OrdersPlaced)
	require.Len(t, report.Trades, 2)
	assert.Equal(t, 2, venue.submitCount())

	// Both buys reserved their notional: 4500 and 5200 bps of 5 USDC each.
	view := l.View(nil, 1)
	assert.Equal(t, int64(4_850_000), view.ReservedUnits)
	assert.Equal(t, int64(95_150_000), view.VaultUnits)

	require.Len(t, reporter.reports, 1)
	assert.Equal(t, uint64(1), reporter.reports[0].Cycle)
}

func TestRunCycle_ObservePlacesNothing(t *testing.T) {
	venue := &testVenue{
		markets: []domain.Market{{ID: 7, Phase: domain.PhaseBetting}},
		snaps:   map[uint64]domain.Snapshot{7: arbitrageSnapshot(7)},
	}
	chain := &testChain{vault: 100_000_000}
	eng, l, _, _ := newTestEngine(t, venue, chain, true)

	report, err := eng.runCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SignalsDetected, "pipeline still runs")
	assert.Equal(t, 2, report.IntentsAdmitted)
	assert.Zero(t, report.OrdersPlaced)
	assert.Zero(t, venue.submitCount())

	view := l.View(nil, 1)
	assert.Zero(t, view.ReservedUnits, "observe mode commits no capital")
}

func TestRunCycle_HaltedMarketProducesNoSignals(t *testing.T) {
	venue := &testVenue{
		markets: []domain.Market{{ID: 7, Phase: domain.PhaseBetting}},
		snaps:   map[uint64]domain.Snapshot{7: arbitrageSnapshot(7)},
	}
	chain := &testChain{vault: 100_000_000}
	eng, l, _, _ := newTestEngine(t, venue, chain, false)

	l.Halt(7, "drift under investigation")

	report, err := eng.runCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.SignalsDetected)
	assert.Zero(t, report.OrdersPlaced)

	found := false
	for _, s := range report.Skips {
		if s.MarketID == 7 && s.Stage == "signal" {
			found = true
		}
	}
	assert.True(t, found, "halt is reported, not silent")
}

func TestRunCycle_LockTransitionCancelsLiveOrders(t *testing.T) {
	venue := &testVenue{
		markets: []domain.Market{
			{ID: 7, Phase: domain.PhaseBetting},
			{ID: 9, Phase: domain.PhaseBetting},
		},
		snaps: map[uint64]domain.Snapshot{
			7: arbitrageSnapshot(7),
			9: {
				MarketID:    9,
				Phase:       domain.PhaseBetting,
				Yes:         domain.Quote{BidBps: 4400, AskBps: 4600},
				No:          domain.Quote{BidBps: 5300, AskBps: 5500},
				RetrievedAt: time.Now().UTC(),
			},
		},
	}
	chain := &testChain{vault: 100_000_000}
	eng, l, _, _ := newTestEngine(t, venue, chain, false)

	report, err := eng.runCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.OrdersPlaced)

	// Market 7 locks between heartbeats; the next cycle sweeps its orders
	// and returns their reserved notional.
	locked := arbitrageSnapshot(7)
	locked.Phase = domain.PhaseLocked
	locked.RetrievedAt = time.Now().UTC()
	venue.snaps[7] = locked

	report, err = eng.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrdersCancelled)
	assert.Zero(t, report.OrdersPlaced)

	view := l.View(nil, 2)
	assert.Zero(t, view.ReservedUnits, "unfilled notional returned to the vault")
}

func TestRunCycle_LockSweepReleasesOnlyBuyNotional(t *testing.T) {
	locked := arbitrageSnapshot(7)
	locked.Phase = domain.PhaseLocked
	venue := &testVenue{
		markets: []domain.Market{{ID: 7, Phase: domain.PhaseBetting}},
		snaps:   map[uint64]domain.Snapshot{7: locked},
	}
	chain := &testChain{vault: 100_000_000}
	eng, l, _, store := newTestEngine(t, venue, chain, false)

	// One live buy that reserved its notional, one live sell that never did.
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), domain.Order{
		ID: "venue-b", ClientID: "buy-1", MarketID: 7,
		Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes,
		PriceBps: 4500, AmountUnits: 5_000_000,
		Status: domain.OrderStatusSubmitted, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Create(context.Background(), domain.Order{
		ID: "venue-s", ClientID: "sell-1", MarketID: 7,
		Side: domain.OrderSideSell, Outcome: domain.OutcomeNo,
		PriceBps: 5200, AmountUnits: 5_000_000,
		Status: domain.OrderStatusSubmitted, CreatedAt: now, UpdatedAt: now,
	}))

	l.SetBalances(0, 100_000_000)
	require.NoError(t, l.Reserve(2_250_000)) // the buy's notional
	require.NoError(t, l.Reserve(3_000_000)) // another market's pending buy

	report, err := eng.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrdersCancelled)

	// Only the buy's notional comes back. The sell reserved nothing, so the
	// unrelated reservation survives the sweep intact.
	view := l.View(nil, 1)
	assert.Equal(t, int64(3_000_000), view.ReservedUnits)
}

func TestOnFill_InconsistentFillHaltsMarket(t *testing.T) {
	venue := &testVenue{}
	eng, l, _, _ := newTestEngine(t, venue, &testChain{}, false)

	// A sell fill with no position behind it cannot be booked.
	eng.OnFill(context.Background(), domain.Fill{
		ID:          "f1",
		OrderID:     "order-1",
		MarketID:    7,
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideSell,
		PriceBps:    5000,
		AmountUnits: 10_000_000,
		Timestamp:   time.Now().UTC(),
	})

	assert.True(t, l.Halted(7))
}

func TestOnPhaseChange_RegressionIgnored(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, &testVenue{}, &testChain{}, false)

	ctx := context.Background()
	eng.OnPhaseChange(ctx, 7, domain.PhaseResolved, nil)
	eng.OnPhaseChange(ctx, 7, domain.PhaseBetting, nil)

	eng.mu.Lock()
	phase := eng.lastPhases[7]
	eng.mu.Unlock()
	assert.Equal(t, domain.PhaseResolved, phase, "phases only move forward")
}

func TestGoalAchieved(t *testing.T) {
	venue := &testVenue{}
	eng, l, _, _ := newTestEngine(t, venue, &testChain{vault: 100_000_000}, false)

	assert.False(t, eng.GoalAchieved())

	// Force realized P&L over the target via a cheap buy and a rich claim.
	l.SetBalances(0, 2_000_000_000)
	require.NoError(t, l.Reserve(1_100_000))
	require.NoError(t, l.ApplyFill(domain.Fill{
		OrderID:     "o1",
		MarketID:    7,
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideBuy,
		PriceBps:    10,
		AmountUnits: 1_100_000_000,
		Timestamp:   time.Now().UTC(),
	}))
	require.NoError(t, l.ApplyClaim(7, domain.OutcomeYes, 0, time.Now().UTC()))

	assert.True(t, eng.GoalAchieved())
}
