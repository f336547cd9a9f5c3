package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/KasunInd27/CampQuest-sub001/internal/config"
	"github.com/KasunInd27/CampQuest-sub001/internal/database"
	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/KasunInd27/CampQuest-sub001/internal/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the already-verified identity acting on an order. Verification
// happens upstream; the store trusts what it is handed.
type Actor struct {
	CustomerID int64
	Role       string
}

func (a Actor) isAdmin() bool { return a.Role == models.RoleAdmin }

type PlaceOrderRequest struct {
	CustomerID      int64
	DeliveryAddress string
	Items           []OrderLineRequest
}

// OrderLineRequest is one candidate line. UnitPrice is only honored for
// package lines, which have no catalog counter to snapshot from; sellable and
// rentable prices are always read from the catalog inside the placement
// transaction.
type OrderLineRequest struct {
	ProductID  int64
	Kind       models.ProductKind
	Quantity   int
	RentalDays int
	UnitPrice  decimal.Decimal
	Name       string
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s", uuid.NewString())
}

// PlaceOrder validates the candidate lines, then atomically decrements every
// referenced counter and persists the order. Either the order and all of its
// decrements commit together, or nothing does. Low-stock alerts collected
// during the commit are handed to the notifier only afterwards; notifier
// failures never affect the returned order.
func PlaceOrder(ctx context.Context, db *sql.DB, notifier notify.Notifier, cfg config.OrderConfig, req PlaceOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, database.ErrEmptyOrder
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d", database.ErrEmptyOrder, line.ProductID)
		}
		if !line.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown product kind %q", database.ErrEmptyOrder, line.Kind)
		}
	}

	var order *models.Order
	var alerts []notify.LowStockAlert

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		alerts = alerts[:0]

		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)",
			req.CustomerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer exists: %w", err)
		}
		if !exists {
			return database.ErrUnauthorized
		}

		// Resolve every catalog-backed line before mutating anything.
		// Locking in line order keeps concurrent placements serialized per
		// product; the guarded decrement below is the final defense.
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			item := models.OrderItem{
				ProductID:   line.ProductID,
				ProductKind: line.Kind,
				Quantity:    line.Quantity,
			}

			if line.Kind.TracksInventory() {
				product, err := LockProduct(ctx, tx, line.ProductID, line.Kind)
				if err != nil {
					return err
				}
				if product.AvailableQuantity < line.Quantity {
					return &database.InsufficientStockError{
						ProductID: product.ID,
						Available: product.AvailableQuantity,
						Requested: line.Quantity,
					}
				}
				item.ProductName = product.Name
				item.UnitPrice = product.Price
				if line.Kind == models.KindRentable {
					item.RentalDays = line.RentalDays
					if item.RentalDays < 1 {
						item.RentalDays = 1
					}
				}
			} else {
				item.ProductName = line.Name
				item.UnitPrice = line.UnitPrice
			}

			item.Subtotal = item.LineSubtotal()
			items = append(items, item)
		}

		for _, item := range items {
			if !item.ProductKind.TracksInventory() {
				continue
			}
			if err := TryDecrement(ctx, tx, item.ProductID, item.ProductKind, item.Quantity); err != nil {
				return err
			}
		}

		totals := models.ComputeTotals(items, cfg.TaxRate, cfg.ShippingFee)

		orderNumber := generateOrderNumber()
		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (customer_id, order_number, status, subtotal, tax, shipping_fee, total_amount, delivery_address, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
			 RETURNING id`,
			req.CustomerID, orderNumber, models.OrderStatusPending,
			totals.Subtotal, totals.Tax, totals.Shipping, totals.Total,
			req.DeliveryAddress).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_kind, product_name, quantity, unit_price, rental_days, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
				orderID, item.ProductID, item.ProductKind, item.ProductName,
				item.Quantity, item.UnitPrice, item.RentalDays, item.Subtotal)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		alerts, err = collectLowStockAlerts(ctx, tx, items, cfg.LowStockThreshold)
		if err != nil {
			return err
		}

		order, err = getOrderTx(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("fetch created order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	notify.DispatchAsync(notifier, notify.OrderCreatedEvent{
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount.String(),
	}, alerts)

	return order, nil
}

// collectLowStockAlerts re-reads the counters this order just decremented and
// flags those at or below the threshold. Every flagged product strictly
// decreased in this operation (zero-quantity lines never get this far).
func collectLowStockAlerts(ctx context.Context, tx *sql.Tx, items []models.OrderItem, threshold int) ([]notify.LowStockAlert, error) {
	seen := make(map[int64]bool)
	var alerts []notify.LowStockAlert

	for _, item := range items {
		if !item.ProductKind.TracksInventory() || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true

		var name string
		var remaining int
		err := tx.QueryRowContext(ctx,
			`SELECT name, available_quantity FROM products WHERE id = $1`,
			item.ProductID).Scan(&name, &remaining)
		if err != nil {
			return nil, fmt.Errorf("check low stock for product %d: %w", item.ProductID, err)
		}

		if remaining <= threshold {
			alerts = append(alerts, notify.LowStockAlert{
				ProductID:   item.ProductID,
				ProductName: name,
				Remaining:   remaining,
			})
		}
	}

	return alerts, nil
}

// Cancel flips the order to cancelled and restores every counter it
// decremented, as one atomic unit. Restore amounts come from the recorded
// line items, never from the current catalog.
func Cancel(ctx context.Context, db *sql.DB, orderID int64, actor Actor, reason string) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !actor.isAdmin() && current.CustomerID != actor.CustomerID {
			return database.ErrForbidden
		}

		if !models.CanCancel(current.Status) {
			return &database.InvalidTransitionError{
				From: current.Status,
				To:   models.OrderStatusCancelled,
			}
		}

		items, err := getOrderItemsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, cancel_reason = $2, version = version + 1, updated_at = NOW()
			 WHERE id = $3`,
			models.OrderStatusCancelled, reason, orderID)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		for _, item := range items {
			if !item.ProductKind.TracksInventory() {
				continue
			}
			if err := Restore(ctx, tx, item.ProductID, item.ProductKind, item.Quantity); err != nil {
				return err
			}
		}

		order, err = getOrderTx(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateStatus moves an order along the fulfilment lifecycle. It refuses
// cancellation, which must go through Cancel so inventory is restored, and it
// has no inventory side effects of its own: in particular a rental order
// moving to returned does not re-increment the pool (restocking after
// physical return is a manual catalog operation).
func UpdateStatus(ctx context.Context, db *sql.DB, orderID int64, next string) (*models.Order, error) {
	if next == models.OrderStatusCancelled {
		return nil, fmt.Errorf("cancellation must go through Cancel: %w", database.ErrInvalidTransition)
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !models.CanTransition(current.Status, next) {
			return &database.InvalidTransitionError{From: current.Status, To: next}
		}

		if next == models.OrderStatusReturned {
			items, err := getOrderItemsTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			current.Items = items
			if !current.HasRentalItems() {
				return &database.InvalidTransitionError{From: current.Status, To: next}
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2`,
			next, orderID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		order, err = getOrderTx(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateDelivery edits the delivery address. Customers may do this only while
// the order is still pending or processing and only within the configured
// window from creation; admins are not window-bound.
func UpdateDelivery(ctx context.Context, db *sql.DB, orderID int64, actor Actor, address string, window time.Duration) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !actor.isAdmin() {
			if current.CustomerID != actor.CustomerID {
				return database.ErrForbidden
			}
			if time.Since(current.CreatedAt) > window {
				return database.ErrEditWindowClosed
			}
		}

		if !models.CanCancel(current.Status) {
			return database.ErrOrderNotEditable
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET delivery_address = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2`,
			address, orderID)
		if err != nil {
			return fmt.Errorf("update delivery address: %w", err)
		}

		order, err = getOrderTx(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

const orderColumns = `id, customer_id, order_number, status, subtotal, tax, shipping_fee, total_amount, cancel_reason, delivery_address, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...interface{}) error }, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.OrderNumber,
		&order.Status,
		&order.Subtotal,
		&order.Tax,
		&order.ShippingFee,
		&order.TotalAmount,
		&order.CancelReason,
		&order.DeliveryAddress,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}
	err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

func getOrderTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}
	err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItemsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

const orderItemColumns = `id, order_id, product_id, product_kind, product_name, quantity, unit_price, rental_days, subtotal, created_at`

func scanOrderItem(row interface{ Scan(...interface{}) error }, item *models.OrderItem) error {
	return row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.ProductKind,
		&item.ProductName,
		&item.Quantity,
		&item.UnitPrice,
		&item.RentalDays,
		&item.Subtotal,
		&item.CreatedAt,
	)
}

func getOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := scanOrderItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}
	err := scanOrder(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := scanOrderItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
