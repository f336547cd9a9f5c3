package notify

import (
	"context"
	"log"
)

// LowStockAlert is raised when a reservation leaves a product at or below
// the low-stock threshold.
type LowStockAlert struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Remaining   int    `json:"remaining"`
}

// OrderCreatedEvent announces a successfully placed order.
type OrderCreatedEvent struct {
	OrderNumber string `json:"order_number"`
	CustomerID  int64  `json:"customer_id"`
	TotalAmount string `json:"total_amount"`
}

// Notifier delivers post-commit events. Implementations must be safe to call
// from the request path: delivery is best-effort and a failure is the
// implementation's problem, never the caller's.
type Notifier interface {
	LowStock(ctx context.Context, alert LowStockAlert) error
	OrderCreated(ctx context.Context, event OrderCreatedEvent) error
}

// LogNotifier stands in when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) LowStock(_ context.Context, alert LowStockAlert) error {
	log.Printf("low stock: product %d (%s) down to %d", alert.ProductID, alert.ProductName, alert.Remaining)
	return nil
}

func (LogNotifier) OrderCreated(_ context.Context, event OrderCreatedEvent) error {
	log.Printf("order created: %s for customer %d, total %s", event.OrderNumber, event.CustomerID, event.TotalAmount)
	return nil
}
