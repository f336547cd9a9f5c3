package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/KasunInd27/CampQuest-sub001/internal/database"
	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	SKU         string
	Name        string
	Description string
	Kind        models.ProductKind
	Price       decimal.Decimal
	Quantity    int
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("invalid product kind %q", req.Kind)
	}

	// Rentables track a fixed pool: total_quantity is set once at creation.
	// Sellables have no tracked upper bound, packages no counter at all.
	var totalQuantity *int
	availability := ""
	if req.Kind == models.KindRentable {
		totalQuantity = &req.Quantity
		availability = models.AvailabilityAvailable
		if req.Quantity == 0 {
			availability = models.AvailabilityUnavailable
		}
	}

	product := &models.Product{}
	query := `
		INSERT INTO products (sku, name, description, kind, price, available_quantity, total_quantity, availability_status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING id, sku, name, description, kind, price, available_quantity, total_quantity, availability_status, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query,
		req.SKU, req.Name, req.Description, req.Kind, req.Price, req.Quantity, totalQuantity, availability).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Kind,
		&product.Price,
		&product.AvailableQuantity,
		&product.TotalQuantity,
		&product.AvailabilityStatus,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func scanProduct(row interface{ Scan(...interface{}) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Kind,
		&product.Price,
		&product.AvailableQuantity,
		&product.TotalQuantity,
		&product.AvailabilityStatus,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, sku, name, description, kind, price, available_quantity, total_quantity, availability_status, created_at, updated_at, version
		FROM products
		WHERE id = $1`

	err := scanProduct(db.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProduct takes a row lock on the product identified by (id, kind),
// serializing concurrent reservations against its counter.
func LockProduct(ctx context.Context, tx *sql.Tx, id int64, kind models.ProductKind) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, sku, name, description, kind, price, available_quantity, total_quantity, availability_status, created_at, updated_at, version
		FROM products
		WHERE id = $1 AND kind = $2
		FOR UPDATE`

	err := scanProduct(tx.QueryRowContext(ctx, query, id, kind), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product %d: %w", id, err)
	}

	return product, nil
}

// TryDecrement subtracts quantity from the product's counter with a guard
// against going negative. No partial effect on failure. A rentable whose
// counter reaches zero gets its availability marker flipped; the marker is
// informational and plays no part in the numeric invariant.
func TryDecrement(ctx context.Context, tx *sql.Tx, productID int64, kind models.ProductKind, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET available_quantity = available_quantity - $1,
		     availability_status = CASE
		         WHEN kind = 'rentable' AND available_quantity - $1 <= 0 THEN 'unavailable'
		         ELSE availability_status
		     END,
		     updated_at = NOW()
		 WHERE id = $2
		   AND kind = $3
		   AND available_quantity >= $1`,
		quantity, productID, kind)
	if err != nil {
		return fmt.Errorf("decrement quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var available int
		err := tx.QueryRowContext(ctx,
			`SELECT available_quantity FROM products WHERE id = $1 AND kind = $2`,
			productID, kind).Scan(&available)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("check product quantity: %w", err)
		}
		return &database.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: quantity,
		}
	}

	return nil
}

// Restore adds quantity back to the product's counter, the exact inverse of a
// prior TryDecrement. A product deleted since the order was placed must not
// block cancellation: the missing row makes this a logged no-op.
func Restore(ctx context.Context, tx *sql.Tx, productID int64, kind models.ProductKind, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET available_quantity = available_quantity + $1,
		     availability_status = CASE
		         WHEN kind = 'rentable' AND available_quantity + $1 > 0 THEN 'available'
		         ELSE availability_status
		     END,
		     updated_at = NOW()
		 WHERE id = $2
		   AND kind = $3`,
		quantity, productID, kind)
	if err != nil {
		return fmt.Errorf("restore quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		log.Printf("restore: product %d (%s) no longer exists, skipping increment of %d",
			productID, kind, quantity)
	}

	return nil
}

// SetQuantityOptimistic is the manual restocking path used by catalog admins
// (including restocking rentals after physical return, which is deliberately
// not coupled to the returned status transition).
func SetQuantityOptimistic(ctx context.Context, db *sql.DB, productID int64, newQuantity, version int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET available_quantity = $1,
		     availability_status = CASE
		         WHEN kind = 'rentable' AND $1 > 0 THEN 'available'
		         WHEN kind = 'rentable' THEN 'unavailable'
		         ELSE availability_status
		     END,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newQuantity, productID, version)
	if err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, sku, name, description, kind, price, available_quantity, total_quantity, availability_status, created_at, updated_at, version
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
