package signal

import (
	"sync"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// flowPoint is one observation of a market's trade activity.
type flowPoint struct {
	priceBps   int64
	tradeCount int
	at         time.Time
}

// FlowTracker keeps a short rolling window of trade activity per market to
// derive momentum. Observations older than the window are pruned on write.
type FlowTracker struct {
	mu      sync.Mutex
	window  time.Duration
	history map[uint64][]flowPoint
}

// NewFlowTracker creates a tracker with the given rolling window.
func NewFlowTracker(window time.Duration) *FlowTracker {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &FlowTracker{
		window:  window,
		history: make(map[uint64][]flowPoint),
	}
}

// Observe records the snapshot's last trade price and cumulative trade count.
// Snapshots without trades are ignored.
func (t *FlowTracker) Observe(snap domain.Snapshot) {
	if snap.LastTradeBps <= 0 || snap.TradeCount == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	points := append(t.history[snap.MarketID], flowPoint{
		priceBps:   snap.LastTradeBps,
		tradeCount: snap.TradeCount,
		at:         snap.RetrievedAt,
	})

	// Keep only the rolling window.
	cutoff := snap.RetrievedAt.Add(-t.window)
	validIdx := 0
	for i, p := range points {
		if p.at.After(cutoff) {
			validIdx = i
			break
		}
	}
	if validIdx > 0 {
		points = points[validIdx:]
	}
	t.history[snap.MarketID] = points
}

// DriftBps returns the YES price drift across the window and whether enough
// activity exists to trust it. At least two observations separated by new
// trades are required.
func (t *FlowTracker) DriftBps(marketID uint64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	points := t.history[marketID]
	if len(points) < 2 {
		return 0, false
	}
	first, last := points[0], points[len(points)-1]
	if last.tradeCount <= first.tradeCount {
		return 0, false
	}
	return last.priceBps - first.priceBps, true
}

// Forget drops a market's history, e.g. after it leaves the tradable phase.
func (t *FlowTracker) Forget(marketID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, marketID)
}
