package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKind distinguishes catalog entries that sell out of stock, rent out
// of a fixed pool, and bundles that carry no inventory of their own.
type ProductKind string

const (
	KindSellable ProductKind = "sellable"
	KindRentable ProductKind = "rentable"
	KindPackage  ProductKind = "package"
)

func (k ProductKind) Valid() bool {
	switch k {
	case KindSellable, KindRentable, KindPackage:
		return true
	}
	return false
}

// TracksInventory reports whether reservation and restoration apply to this
// kind. Package lines never touch a counter.
func (k ProductKind) TracksInventory() bool {
	return k == KindSellable || k == KindRentable
}

const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

type Customer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Product holds one inventory counter. For sellable items AvailableQuantity
// is plain stock with no upper bound; for rentable items it is bounded by
// TotalQuantity and carries an informational availability marker that flips
// when the pool empties.
type Product struct {
	ID                 int64           `json:"id"`
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Kind               ProductKind     `json:"kind"`
	Price              decimal.Decimal `json:"price"`
	AvailableQuantity  int             `json:"available_quantity"`
	TotalQuantity      *int            `json:"total_quantity,omitempty"`
	AvailabilityStatus string          `json:"availability_status,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// OrderItem is a line of an order. Kind, name and unit price are snapshots
// taken at placement time; cancellation restores by these recorded values,
// never by re-deriving from the current catalog.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductKind ProductKind     `json:"product_kind"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	RentalDays  int             `json:"rental_days,omitempty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LineSubtotal is unit price times quantity, times rental days for rentals.
func (i OrderItem) LineSubtotal() decimal.Decimal {
	sub := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	if i.ProductKind == KindRentable && i.RentalDays > 0 {
		sub = sub.Mul(decimal.NewFromInt(int64(i.RentalDays)))
	}
	return sub
}

type Order struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	OrderNumber     string          `json:"order_number"`
	Status          string          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// HasRentalItems reports whether any line is a rental; only such orders may
// reach the returned state.
func (o *Order) HasRentalItems() bool {
	for _, item := range o.Items {
		if item.ProductKind == KindRentable {
			return true
		}
	}
	return false
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusReturned   = "returned"
)

// transitions is the order lifecycle. cancelled, completed and returned are
// terminal; returned is additionally gated on the order containing rental
// lines (checked by the ledger, not here).
var transitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCompleted},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusReturned},
	OrderStatusCompleted:  {OrderStatusReturned},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports states with no outgoing transitions. completed is not
// listed because rental orders may still move to returned from it.
func IsTerminal(status string) bool {
	return status == OrderStatusCancelled || status == OrderStatusReturned
}

// CanCancel limits cancellation to the pre-fulfilment states.
func CanCancel(status string) bool {
	return status == OrderStatusPending || status == OrderStatusProcessing
}

// OrderTotals is the price breakdown fixed at placement time.
type OrderTotals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives the order totals from its line items. Called exactly
// once during placement; the stored amounts are never recomputed afterwards.
func ComputeTotals(items []OrderItem, taxRate, shippingFee decimal.Decimal) OrderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineSubtotal())
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return OrderTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shippingFee,
		Total:    subtotal.Add(tax).Add(shippingFee),
	}
}
