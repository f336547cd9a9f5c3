package store

import (
	"context"
	"database/sql"
	"log"

	"github.com/KasunInd27/CampQuest-sub001/internal/cart"
	"github.com/KasunInd27/CampQuest-sub001/internal/config"
	"github.com/KasunInd27/CampQuest-sub001/internal/database"
	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/KasunInd27/CampQuest-sub001/internal/notify"
)

// CartSource is the slice of the cart store checkout consumes.
type CartSource interface {
	Get(ctx context.Context, customerID int64) ([]cart.Line, error)
	Clear(ctx context.Context, customerID int64) error
}

// Checkout places an order from the customer's cart. The cart is only a
// source of candidate lines; it is cleared after the order commits, and a
// failure to clear it cannot un-place the order.
func Checkout(ctx context.Context, db *sql.DB, carts CartSource, notifier notify.Notifier, cfg config.OrderConfig, customerID int64, deliveryAddress string) (*models.Order, error) {
	lines, err := carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, database.ErrCartEmpty
	}

	items := make([]OrderLineRequest, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderLineRequest{
			ProductID:  line.ProductID,
			Kind:       line.Kind,
			Quantity:   line.Quantity,
			RentalDays: line.RentalDays,
			UnitPrice:  line.UnitPrice,
			Name:       line.Name,
		})
	}

	order, err := PlaceOrder(ctx, db, notifier, cfg, PlaceOrderRequest{
		CustomerID:      customerID,
		DeliveryAddress: deliveryAddress,
		Items:           items,
	})
	if err != nil {
		return nil, err
	}

	if err := carts.Clear(ctx, customerID); err != nil {
		log.Printf("checkout: clear cart for customer %d after order %s: %v",
			customerID, order.OrderNumber, err)
	}

	return order, nil
}
