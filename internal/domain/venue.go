package domain

import "context"

// Balance is the venue-side account balance split into free and
// order-reserved capital, in smallest currency units.
type Balance struct {
	AvailableUnits int64
	ReservedUnits  int64
}

// SharePair is the venue's view of YES/NO holdings in one market.
type SharePair struct {
	YesUnits int64
	NoUnits  int64
}

// AccountState is the venue's full view of one trader: balances, per-market
// share holdings, and open orders. It is one of the two authoritative sources
// the ledger reconciles (the other is the on-chain vault).
type AccountState struct {
	Address    string
	Balance    Balance
	Positions  map[uint64]SharePair
	OpenOrders []Order
}

// MarketDataAPI is the venue's read-only market data contract. Reads are
// idempotent and may be retried; implementations must never mutate state.
type MarketDataAPI interface {
	ListMarkets(ctx context.Context) ([]Market, error)
	FetchSnapshot(ctx context.Context, marketID uint64) (Snapshot, error)
	FetchState(ctx context.Context, address string) (AccountState, error)
}

// OrderAPI is the venue's order mutation contract. Submissions are never
// blindly retried; callers query order status before deciding to resubmit.
type OrderAPI interface {
	SubmitOrder(ctx context.Context, o Order) (venueID string, status OrderStatus, err error)
	CancelOrder(ctx context.Context, venueID string, auth CancelAuthorization) (OrderStatus, error)
	OrderStatus(ctx context.Context, venueID string) (OrderStatus, int64, error)
}

// CancelAuthorization is the freshness-bound signed authorization a cancel
// request carries: an EIP-191 signature over the order id and a timestamp.
type CancelAuthorization struct {
	Message     string
	TimestampMs int64
	Signature   string
}

// ChainAPI wraps the on-chain vault and exchange operations. Every call is
// atomic from the caller's perspective: it returns only after confirmation or
// failure, and the ledger is mutated only on confirmation.
type ChainAPI interface {
	VaultBalance(ctx context.Context, address string) (int64, error)
	WalletBalance(ctx context.Context, address string) (int64, error)
	Shares(ctx context.Context, marketID uint64, address string) (SharePair, error)
	Deposit(ctx context.Context, amountUnits int64) (txHash string, err error)
	Withdraw(ctx context.Context, amountUnits int64) (txHash string, err error)
	Mint(ctx context.Context, marketID uint64, amountUnits int64) (txHash string, err error)
	Merge(ctx context.Context, marketID uint64, amountUnits int64) (txHash string, err error)
	Claim(ctx context.Context, marketID uint64) (txHash string, err error)
	Transfer(ctx context.Context, to string, amountUnits int64) (txHash string, err error)
}
