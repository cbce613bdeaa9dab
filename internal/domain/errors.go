package domain

import "errors"

// Error taxonomy. Per-market errors are isolated: a failure on one market
// never aborts evaluation of the others in the same cycle.
var (
	// ErrSnapshotUnavailable marks a transient market-data failure; callers
	// skip the market for the cycle rather than treating it as illiquid.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")

	// ErrOrderRejected marks a venue-side rejection (phase locked,
	// insufficient balance, invalid signature). Surfaced, never retried
	// blindly.
	ErrOrderRejected = errors.New("order rejected")

	// ErrSettlementFailed marks an on-chain call that reverted or timed out.
	// No ledger mutation may follow it.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrReconciliationDrift marks a disagreement between venue and chain
	// state; capital-committing actions on the market halt until resolved.
	ErrReconciliationDrift = errors.New("reconciliation drift")

	// ErrRiskLimitViolation marks an intent clamped or dropped by the risk
	// governor. Informational, not a failure.
	ErrRiskLimitViolation = errors.New("risk limit violation")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStaleSnapshot = errors.New("snapshot stale")
	ErrMarketLocked  = errors.New("market not in betting phase")
	ErrLockHeld      = errors.New("lock already held")
	ErrSigningFailed = errors.New("signing failed")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrInsufficient  = errors.New("insufficient balance or shares")
)
