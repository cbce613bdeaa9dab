package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransition(t *testing.T) {
	// Terminal states accept nothing.
	for _, terminal := range []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired} {
		assert.False(t, terminal.CanTransition(OrderStatusSubmitted), "%s must stay terminal", terminal)
		assert.False(t, terminal.CanTransition(OrderStatusPartiallyFilled), "%s must stay terminal", terminal)
	}

	assert.True(t, OrderStatusPlanned.CanTransition(OrderStatusSigned))
	assert.True(t, OrderStatusSigned.CanTransition(OrderStatusSubmitted))
	assert.True(t, OrderStatusSubmitted.CanTransition(OrderStatusPartiallyFilled))
	assert.True(t, OrderStatusPartiallyFilled.CanTransition(OrderStatusFilled))
	assert.True(t, OrderStatusPartiallyFilled.CanTransition(OrderStatusCancelled))

	// No going backwards.
	assert.False(t, OrderStatusSubmitted.CanTransition(OrderStatusSigned))
	assert.False(t, OrderStatusPartiallyFilled.CanTransition(OrderStatusSubmitted))
}

func TestOrderIntent_NotionalUnits(t *testing.T) {
	intent := OrderIntent{PriceBps: 4500, AmountUnits: 10 * AmountScale}
	assert.Equal(t, int64(4_500_000), intent.NotionalUnits(), "10 shares at $0.45")
}

func TestOrder_RemainingUnits(t *testing.T) {
	o := Order{AmountUnits: 10, FilledUnits: 4}
	assert.Equal(t, int64(6), o.RemainingUnits())

	o.FilledUnits = 12
	assert.Equal(t, int64(0), o.RemainingUnits(), "overfill clamps to zero")
}
