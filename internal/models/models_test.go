package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProductKind(t *testing.T) {
	assert.True(t, KindSellable.Valid())
	assert.True(t, KindRentable.Valid())
	assert.True(t, KindPackage.Valid())
	assert.False(t, ProductKind("bundle").Valid())

	assert.True(t, KindSellable.TracksInventory())
	assert.True(t, KindRentable.TracksInventory())
	assert.False(t, KindPackage.TracksInventory())
}

func TestLineSubtotal(t *testing.T) {
	sellable := OrderItem{
		ProductKind: KindSellable,
		Quantity:    3,
		UnitPrice:   decimal.NewFromInt(25),
	}
	assert.True(t, sellable.LineSubtotal().Equal(decimal.NewFromInt(75)))

	rental := OrderItem{
		ProductKind: KindRentable,
		Quantity:    2,
		UnitPrice:   decimal.NewFromInt(10),
		RentalDays:  4,
	}
	assert.True(t, rental.LineSubtotal().Equal(decimal.NewFromInt(80)))

	// A rental with no days recorded falls back to a plain multiply.
	rentalNoDays := OrderItem{
		ProductKind: KindRentable,
		Quantity:    2,
		UnitPrice:   decimal.NewFromInt(10),
	}
	assert.True(t, rentalNoDays.LineSubtotal().Equal(decimal.NewFromInt(20)))
}

func TestComputeTotals(t *testing.T) {
	items := []OrderItem{
		{ProductKind: KindSellable, Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		{ProductKind: KindRentable, Quantity: 1, UnitPrice: decimal.NewFromInt(50), RentalDays: 3},
		{ProductKind: KindPackage, Quantity: 1, UnitPrice: decimal.NewFromInt(250)},
	}

	totals := ComputeTotals(items, decimal.NewFromFloat(0.08), decimal.NewFromInt(15))

	// 200 + 150 + 250 = 600, tax 48, shipping 15
	assert.True(t, totals.Subtotal.Equal(decimal.NewFromInt(600)), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(48)), "tax %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(663)), "total %s", totals.Total)
}

func TestComputeTotalsRoundsTax(t *testing.T) {
	items := []OrderItem{
		{ProductKind: KindSellable, Quantity: 1, UnitPrice: decimal.NewFromFloat(19.99)},
	}

	totals := ComputeTotals(items, decimal.NewFromFloat(0.08), decimal.Zero)

	assert.True(t, totals.Tax.Equal(decimal.NewFromFloat(1.60)), "tax %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.NewFromFloat(21.59)), "total %s", totals.Total)
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{OrderStatusPending, OrderStatusProcessing},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusProcessing, OrderStatusCancelled},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusCompleted},
		{OrderStatusDelivered, OrderStatusReturned},
		{OrderStatusCompleted, OrderStatusReturned},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to string }{
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusDelivered, OrderStatusCancelled},
		{OrderStatusCancelled, OrderStatusPending},
		{OrderStatusCancelled, OrderStatusProcessing},
		{OrderStatusReturned, OrderStatusCompleted},
		{OrderStatusCompleted, OrderStatusPending},
		{OrderStatusPending, OrderStatusReturned},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestCanCancel(t *testing.T) {
	assert.True(t, CanCancel(OrderStatusPending))
	assert.True(t, CanCancel(OrderStatusProcessing))
	assert.False(t, CanCancel(OrderStatusShipped))
	assert.False(t, CanCancel(OrderStatusCancelled))
	assert.False(t, CanCancel(OrderStatusCompleted))
	assert.False(t, CanCancel(OrderStatusReturned))
}

func TestHasRentalItems(t *testing.T) {
	order := &Order{Items: []OrderItem{
		{ProductKind: KindSellable},
		{ProductKind: KindPackage},
	}}
	assert.False(t, order.HasRentalItems())

	order.Items = append(order.Items, OrderItem{ProductKind: KindRentable})
	assert.True(t, order.HasRentalItems())
}
