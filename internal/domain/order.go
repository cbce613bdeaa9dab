package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. Transitions are monotonic:
//
//	planned -> signed -> submitted -> {filled, partially_filled, cancelled, rejected, expired}
//
// with partially_filled allowed to re-enter itself until a terminal state.
type OrderStatus string

const (
	OrderStatusPlanned         OrderStatus = "planned"
	OrderStatusSigned          OrderStatus = "signed"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Live reports whether the order may still receive fills at the venue.
func (s OrderStatus) Live() bool {
	return s == OrderStatusSubmitted || s == OrderStatusPartiallyFilled
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPlanned:
		return next == OrderStatusSigned || next == OrderStatusRejected
	case OrderStatusSigned:
		return next == OrderStatusSubmitted || next == OrderStatusCancelled || next == OrderStatusRejected
	case OrderStatusSubmitted:
		switch next {
		case OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
			return true
		}
		return false
	case OrderStatusPartiallyFilled:
		switch next {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
			return true
		}
		return false
	}
	return false
}

// OrderIntent is a proposed trade produced by the signal calculator. The risk
// governor may clamp its size or drop it entirely before it reaches the order
// lifecycle manager.
type OrderIntent struct {
	ID          string
	MarketID    uint64
	Side        OrderSide
	Outcome     Outcome
	PriceBps    int64
	AmountUnits int64 // share quantity, smallest currency unit scale
	Signal      SignalKind
	EdgeBps     int64 // magnitude of the originating signal
	Closing     bool  // stop-loss or claim-driven position close
	Reason      string
	CreatedAt   time.Time
}

// NotionalUnits is the capital the intent commits: price x quantity, in
// smallest currency units.
func (i OrderIntent) NotionalUnits() int64 {
	return i.PriceBps * i.AmountUnits / PricePrecision
}

// Order is a signed, venue-tracked order. All fields of the originating
// intent are retained so the signing payload can be reconstructed
// byte-for-byte.
type Order struct {
	ID          string // venue-assigned; empty until submission accepted
	ClientID    string // local UUID assigned at planning time
	MarketID    uint64
	Trader      string // checksummed wallet address
	Side        OrderSide
	Outcome     Outcome
	PriceBps    int64
	AmountUnits int64
	FilledUnits int64
	NonceMs     int64 // signing nonce, unix milliseconds
	ExpiryUnix  int64
	Status      OrderStatus
	Signature   string // EIP-712 hex
	Signal      SignalKind
	Closing     bool
	CreatedAt   time.Time
	SubmittedAt *time.Time
	UpdatedAt   time.Time
}

// RemainingUnits returns the unfilled share quantity.
func (o Order) RemainingUnits() int64 {
	r := o.AmountUnits - o.FilledUnits
	if r < 0 {
		return 0
	}
	return r
}

// Fill is one confirmed execution reported by the venue's fill feed.
type Fill struct {
	ID          string
	OrderID     string
	MarketID    uint64
	Side        OrderSide
	Outcome     Outcome
	PriceBps    int64
	AmountUnits int64
	FeeUnits    int64
	Timestamp   time.Time
}
