package domain

import (
	"context"
	"time"
)

// SnapshotCache holds recent market snapshots with a bounded TTL so a restart
// or a second reader within one cycle does not re-hit the venue.
type SnapshotCache interface {
	Put(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Get(ctx context.Context, marketID uint64) (Snapshot, error)
}

// SessionLocker serializes trading sessions on shared state. Acquire returns
// an unlock function on success or ErrLockHeld when another session holds the
// key.
type SessionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ReportArchiver ships finished cycle reports to long-term storage.
type ReportArchiver interface {
	Archive(ctx context.Context, r CycleReport) error
}
