package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardclob/blackjackbot/internal/domain"
)

func TestStatusFromAPI(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"open":             domain.OrderStatusSubmitted,
		"submitted":        domain.OrderStatusSubmitted,
		"":                 domain.OrderStatusSubmitted,
		"partially_filled": domain.OrderStatusPartiallyFilled,
		"filled":           domain.OrderStatusFilled,
		"cancelled":        domain.OrderStatusCancelled,
		"rejected":         domain.OrderStatusRejected,
		"expired":          domain.OrderStatusExpired,
		"matching":         domain.OrderStatusSubmitted, // unknown stays live
	}
	for in, want := range cases {
		assert.Equal(t, want, statusFromAPI(in), "status %q", in)
	}
}

func TestParseUnits(t *testing.T) {
	assert.Equal(t, int64(10_000_000), parseUnits("10000000"))
	assert.Zero(t, parseUnits(""))
	assert.Zero(t, parseUnits("not-a-number"))
	assert.Zero(t, parseUnits("123.45"), "decimals are venue bugs, not amounts")
}

func TestAPIOrderToDomain(t *testing.T) {
	o := apiOrder{
		OrderID:  "venue-1",
		Trader:   "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
		MarketID: 7,
		IsBuy:    true,
		IsYes:    false,
		Price:    4500,
		Amount:   "10000000",
		Filled:   "2500000",
		Nonce:    1756600000000,
		Expiry:   1756600060,
		Status:   "partially_filled",
	}

	got := o.toDomain()
	assert.Equal(t, "venue-1", got.ID)
	assert.Equal(t, domain.OrderSideBuy, got.Side)
	assert.Equal(t, domain.OutcomeNo, got.Outcome)
	assert.Equal(t, int64(4500), got.PriceBps)
	assert.Equal(t, int64(10_000_000), got.AmountUnits)
	assert.Equal(t, int64(2_500_000), got.FilledUnits)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, got.Status)
}

func TestAPIMarketToDomain(t *testing.T) {
	winner := "yes"
	m := apiMarket{
		MarketID:  7,
		HandID:    "hand-19",
		Phase:     "RESOLVED",
		Winner:    &winner,
		CreatedAt: 1756600000000,
		UpdatedAt: 1756600030000,
	}

	got := m.toDomain()
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, domain.PhaseResolved, got.Phase)
	assert.True(t, got.Claimable())
	assert.Equal(t, domain.OutcomeYes, *got.Winner)
}

func TestTopDepth(t *testing.T) {
	assert.Zero(t, topDepth(nil))
	levels := []apiBookLevel{{Price: 4500, TotalAmount: "7000000"}, {Price: 4400, TotalAmount: "1000000"}}
	assert.Equal(t, int64(7_000_000), topDepth(levels))
}
