package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardclob/blackjackbot/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	alerts []Alert
	err    error
}

func (s *recordingSender) Send(_ context.Context, a Alert) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, a.Title)
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_FanOut(t *testing.T) {
	a := &recordingSender{name: "discord"}
	b := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventGoal, "Goal achieved", "pnl +12.50"))
	assert.Equal(t, []string{"Goal achieved"}, a.titles)
	assert.Equal(t, []string{"Goal achieved"}, b.titles)
}

func TestNotify_EventFilter(t *testing.T) {
	s := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{s}, []string{EventHalt, EventGoal}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventCycle, "cycle", "noise"))
	assert.Empty(t, s.titles, "cycle events are filtered")

	require.NoError(t, n.Notify(context.Background(), EventHalt, "halted", "drift"))
	assert.Equal(t, []string{"halted"}, s.titles)
}

func TestNotify_OneFailureDoesNotStopTheRest(t *testing.T) {
	broken := &recordingSender{name: "discord", err: errors.New("webhook 404")}
	healthy := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.Notify(context.Background(), EventHalt, "halted", "drift")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord")
	assert.Equal(t, []string{"halted"}, healthy.titles)
}

func TestNotify_CarriesEventToSenders(t *testing.T) {
	s := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventHalt, "halted", "drift"))
	require.Len(t, s.alerts, 1)
	assert.Equal(t, EventHalt, s.alerts[0].Event)
	assert.Equal(t, "drift", s.alerts[0].Body)
}

func TestEventRendering(t *testing.T) {
	assert.Equal(t, colorHalt, embedColor(EventHalt))
	assert.Equal(t, colorGoal, embedColor(EventGoal))
	assert.Equal(t, colorSettlement, embedColor(EventSettlement))
	assert.Equal(t, colorNeutral, embedColor(EventCycle))

	assert.Equal(t, "🛑", eventTag(EventHalt))
	assert.Equal(t, "📊", eventTag(EventCycle))
	assert.Equal(t, "ℹ️", eventTag(""))
}

func TestNotify_NoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
}

func sampleReport() domain.CycleReport {
	started := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	return domain.CycleReport{
		Cycle:            42,
		StartedAt:        started,
		FinishedAt:       started.Add(750 * time.Millisecond),
		MarketsEvaluated: 3,
		SignalsDetected:  2,
		IntentsAdmitted:  2,
		IntentsDropped:   1,
		OrdersPlaced:     2,
		OpenPositions:    1,
		RealizedPnLUnits: 1_250_000,
		ExposurePct:      42.5,
		GoalProgressPct:  12.5,
		Trades: []domain.TradeRecord{{
			OrderID:     "aaaabbbb-cccc-dddd-eeee-ffffgggghhhh",
			MarketID:    7,
			Side:        domain.OrderSideBuy,
			Outcome:     domain.OutcomeYes,
			PriceBps:    4500,
			AmountUnits: 10_000_000,
			Signal:      domain.SignalArbitrage,
			Status:      domain.OrderStatusSubmitted,
		}},
		Skips: []domain.SkipReason{{
			MarketID: 9,
			Stage:    "risk",
			Reason:   "edge below minimum",
		}},
	}
}

func TestConsole_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	require.NoError(t, c.Publish(context.Background(), sampleReport()))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "compact mode is one line")
	assert.Contains(t, out, "cycle 42")
	assert.Contains(t, out, "ord:2")
	assert.Contains(t, out, "$1.25")
}

func TestConsole_FullTables(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	require.NoError(t, c.Publish(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "aaaabbbb", "order ids are shortened, not dropped")
	assert.Contains(t, out, "arbitrage")
	assert.Contains(t, out, "edge below minimum")
}
