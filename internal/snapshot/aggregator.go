// Package snapshot collects consistent per-market views from the venue at
// the start of every trading cycle.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// defaultConcurrency bounds the snapshot fan-out per cycle.
const defaultConcurrency = 8

// Aggregator fetches market snapshots with bounded concurrency, caches them,
// and rejects stale reads. It performs no writes to the venue.
type Aggregator struct {
	api     domain.MarketDataAPI
	cache   domain.SnapshotCache
	maxAge  time.Duration
	timeout time.Duration
	limit   int
	logger  *slog.Logger
}

// New creates an Aggregator. maxAge is the staleness threshold downstream
// consumers enforce; snapshots are cached for the same window. cache may be
// nil, in which case every read hits the venue.
func New(api domain.MarketDataAPI, cache domain.SnapshotCache, maxAge, timeout time.Duration, logger *slog.Logger) *Aggregator {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{
		api:     api,
		cache:   cache,
		maxAge:  maxAge,
		timeout: timeout,
		limit:   defaultConcurrency,
		logger:  logger.With(slog.String("component", "snapshot")),
	}
}

// CollectAll snapshots every active market. Per-market failures never abort
// the rest of the fan-out: each failed market becomes a SkipReason and the
// remaining snapshots are returned. Results are ordered by market ID so a
// cycle's downstream processing is deterministic.
func (a *Aggregator) CollectAll(ctx context.Context, maxMarkets int) ([]domain.Snapshot, []domain.SkipReason, error) {
	markets, err := a.api.ListMarkets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: list markets: %w: %v", domain.ErrSnapshotUnavailable, err)
	}

	active := markets[:0]
	for _, m := range markets {
		if m.Phase.Known() {
			active = append(active, m)
		}
	}
	if maxMarkets > 0 && len(active) > maxMarkets {
		active = active[:maxMarkets]
	}

	var (
		mu    sync.Mutex
		snaps []domain.Snapshot
		skips []domain.SkipReason
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for _, m := range active {
		market := m
		g.Go(func() error {
			snap, err := a.Collect(gctx, market.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skips = append(skips, domain.SkipReason{
					MarketID: market.ID,
					Stage:    "snapshot",
					Reason:   err.Error(),
				})
				return nil
			}
			snaps = append(snaps, snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("snapshot: collect: %w", err)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].MarketID < snaps[j].MarketID })
	sort.Slice(skips, func(i, j int) bool { return skips[i].MarketID < skips[j].MarketID })

	a.logger.Debug("cycle snapshots collected",
		slog.Int("markets", len(active)),
		slog.Int("ok", len(snaps)),
		slog.Int("skipped", len(skips)))
	return snaps, skips, nil
}

// Collect returns one market's snapshot, from cache when fresh, otherwise
// from the venue. A stale or unreachable snapshot returns
// ErrSnapshotUnavailable so callers skip the market this cycle instead of
// reading it as empty.
func (a *Aggregator) Collect(ctx context.Context, marketID uint64) (domain.Snapshot, error) {
	now := time.Now().UTC()

	if a.cache != nil {
		cached, err := a.cache.Get(ctx, marketID)
		if err == nil && !cached.Stale(now, a.maxAge) {
			return cached, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("snapshot cache read failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	snap, err := a.api.FetchSnapshot(fetchCtx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotUnavailable) {
			return domain.Snapshot{}, err
		}
		return domain.Snapshot{}, fmt.Errorf("snapshot: market %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}
	if snap.Stale(now, a.maxAge) {
		return domain.Snapshot{}, fmt.Errorf("snapshot: market %d: %w: retrieved at %s", marketID, domain.ErrStaleSnapshot, snap.RetrievedAt.Format(time.RFC3339))
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, snap, a.maxAge); err != nil {
			a.logger.Warn("snapshot cache write failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}
	return snap, nil
}
