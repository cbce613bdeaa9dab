package exchange

import (
	"strconv"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// apiMarket is one entry of GET /api/markets.
type apiMarket struct {
	MarketID  uint64  `json:"marketId"`
	HandID    string  `json:"handId"`
	Phase     string  `json:"phase"`
	Winner    *string `json:"winner,omitempty"`
	CreatedAt int64   `json:"createdAt"` // unix ms
	UpdatedAt int64   `json:"updatedAt"`
}

func (m apiMarket) toDomain() domain.Market {
	out := domain.Market{
		ID:        m.MarketID,
		HandID:    m.HandID,
		Phase:     domain.MarketPhase(m.Phase),
		CreatedAt: time.UnixMilli(m.CreatedAt),
		UpdatedAt: time.UnixMilli(m.UpdatedAt),
	}
	if m.Winner != nil {
		w := domain.Outcome(*m.Winner)
		out.Winner = &w
	}
	return out
}

// apiFairPrice is GET /api/fair-price/:marketId. All prices are basis points.
type apiFairPrice struct {
	YesBestBid   int64 `json:"yesBestBid"`
	YesBestAsk   int64 `json:"yesBestAsk"`
	NoBestBid    int64 `json:"noBestBid"`
	NoBestAsk    int64 `json:"noBestAsk"`
	YesFairPrice int64 `json:"yesFairPrice"`
	NoFairPrice  int64 `json:"noFairPrice"`
	HasLiquidity bool  `json:"hasLiquidity"`
}

// apiBookLevel is one price level of GET /api/orderbook/:marketId.
// TotalAmount is a decimal string in smallest currency units.
type apiBookLevel struct {
	Price       int64  `json:"price"`
	TotalAmount string `json:"totalAmount"`
}

func (l apiBookLevel) amountUnits() int64 {
	n, err := strconv.ParseInt(l.TotalAmount, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// apiOrderbook is GET /api/orderbook/:marketId.
type apiOrderbook struct {
	YesBids []apiBookLevel `json:"yesBids"`
	YesAsks []apiBookLevel `json:"yesAsks"`
	NoBids  []apiBookLevel `json:"noBids"`
	NoAsks  []apiBookLevel `json:"noAsks"`
}

func topDepth(levels []apiBookLevel) int64 {
	if len(levels) == 0 {
		return 0
	}
	return levels[0].amountUnits()
}

// apiMarketStats is GET /api/market-stats/:marketId.
type apiMarketStats struct {
	Volume         string  `json:"volume"` // smallest currency units
	TradeCount     int     `json:"tradeCount"`
	LastTradePrice int64   `json:"lastTradePrice"`
	Phase          string  `json:"phase"`
	HandID         string  `json:"handId"`
	Winner         *string `json:"winner,omitempty"`
}

// apiState is GET /api/state/:address.
type apiState struct {
	Balance struct {
		Available string `json:"available"`
		Reserved  string `json:"reserved"`
	} `json:"balance"`
	Positions  map[string]apiShares `json:"positions"`
	OpenOrders []apiOrder           `json:"openOrders"`
}

type apiShares struct {
	Yes string `json:"yes"`
	No  string `json:"no"`
}

// apiOrder is the venue's order representation, also used in the
// POST /api/order payload.
type apiOrder struct {
	OrderID   string `json:"orderId,omitempty"`
	Trader    string `json:"trader"`
	MarketID  uint64 `json:"marketId"`
	IsBuy     bool   `json:"isBuy"`
	IsYes     bool   `json:"isYes"`
	Price     int64  `json:"price"`
	Amount    string `json:"amount"` // uint128 as decimal string
	Filled    string `json:"filled,omitempty"`
	Nonce     int64  `json:"nonce"`
	Expiry    int64  `json:"expiry"`
	Status    string `json:"status,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (o apiOrder) toDomain() domain.Order {
	side := domain.OrderSideSell
	if o.IsBuy {
		side = domain.OrderSideBuy
	}
	outcome := domain.OutcomeNo
	if o.IsYes {
		outcome = domain.OutcomeYes
	}
	return domain.Order{
		ID:          o.OrderID,
		MarketID:    o.MarketID,
		Trader:      o.Trader,
		Side:        side,
		Outcome:     outcome,
		PriceBps:    o.Price,
		AmountUnits: parseUnits(o.Amount),
		FilledUnits: parseUnits(o.Filled),
		NonceMs:     o.Nonce,
		ExpiryUnix:  o.Expiry,
		Status:      statusFromAPI(o.Status),
		Signature:   o.Signature,
	}
}

func parseUnits(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// statusFromAPI maps the venue's order status strings onto the lifecycle
// statuses. Unknown strings map to submitted so a venue-side addition never
// silently terminates an order.
func statusFromAPI(s string) domain.OrderStatus {
	switch s {
	case "open", "submitted", "":
		return domain.OrderStatusSubmitted
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "cancelled":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	case "expired":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusSubmitted
	}
}

// apiOrderResult is the response to POST /api/order.
type apiOrderResult struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
	Filled   string `json:"filled,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// apiCancelResult is the response to DELETE /api/order/:id.
type apiCancelResult struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// RemoteConfig is GET /api/config: the venue's published chain parameters.
type RemoteConfig struct {
	ChainID int64  `json:"chainId"`
	RPCURL  string `json:"rpcUrl"`
	Network string `json:"network"`
	Contracts struct {
		Exchange string `json:"exchange"`
		Vault    string `json:"vault"`
		USDC     string `json:"usdc"`
	} `json:"contracts"`
}

// Event is one message from the exchange WebSocket stream.
type Event struct {
	Type      string  `json:"type"` // "trade", "phase_change", "book_update", "fill"
	MarketID  uint64  `json:"marketId"`
	Phase     string  `json:"phase,omitempty"`
	Winner    *string `json:"winner,omitempty"`
	OrderID   string  `json:"orderId,omitempty"`
	Trader    string  `json:"trader,omitempty"`
	IsBuy     bool    `json:"isBuy,omitempty"`
	IsYes     bool    `json:"isYes,omitempty"`
	Price     int64   `json:"price,omitempty"`
	Amount    string  `json:"amount,omitempty"`
	Fee       string  `json:"fee,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix ms
}
