package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache using Redis string values
// with a TTL. One key per market:
//
//	blackjackbot:snapshot:{marketID}  - JSON-encoded snapshot, expiring at
//	                                    the staleness threshold
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb}
}

func snapshotKey(marketID uint64) string {
	return keyPrefix + "snapshot:" + strconv.FormatUint(marketID, 10)
}

// Put stores a snapshot for ttl. The TTL doubles as the staleness bound: an
// expired key reads as a miss, never as stale data.
func (sc *SnapshotCache) Put(ctx context.Context, snap domain.Snapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %d: %w", snap.MarketID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.MarketID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %d: %w", snap.MarketID, err)
	}
	return nil
}

// Get returns the cached snapshot, or ErrNotFound on a miss.
func (sc *SnapshotCache) Get(ctx context.Context, marketID uint64) (domain.Snapshot, error) {
	payload, err := sc.rdb.Get(ctx, snapshotKey(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("redis: snapshot %d: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %d: %w", marketID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: decode snapshot %d: %w", marketID, err)
	}
	return snap, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
