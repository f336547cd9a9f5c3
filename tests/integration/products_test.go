package integration

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/KasunInd27/CampQuest-sub001/internal/database"
	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/KasunInd27/CampQuest-sub001/internal/store"
	"github.com/shopspring/decimal"
)

func TestCreateProductKinds(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	sellable, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
		SKU: "SELL-001", Name: "Camp Stove", Kind: models.KindSellable,
		Price: decimal.NewFromInt(60), Quantity: 20,
	})
	if err != nil {
		t.Fatalf("Create sellable: %v", err)
	}
	if sellable.TotalQuantity != nil {
		t.Error("Sellable should not track a total quantity")
	}

	rentable, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
		SKU: "RENT-001", Name: "Canoe", Kind: models.KindRentable,
		Price: decimal.NewFromInt(35), Quantity: 4,
	})
	if err != nil {
		t.Fatalf("Create rentable: %v", err)
	}
	if rentable.TotalQuantity == nil || *rentable.TotalQuantity != 4 {
		t.Errorf("Rentable should record total quantity 4, got %v", rentable.TotalQuantity)
	}
	if rentable.AvailabilityStatus != models.AvailabilityAvailable {
		t.Errorf("Expected available marker, got %q", rentable.AvailabilityStatus)
	}

	_, err = store.CreateProduct(ctx, db, store.CreateProductRequest{
		SKU: "BAD-001", Name: "Mystery", Kind: "mystery",
		Price: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Error("Expected error for invalid kind")
	}
}

func TestTryDecrementAndRestore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := createProduct(t, db, "DEC-001", models.KindSellable, 10, 5)

	inTx := func(t *testing.T, fn func(tx *sql.Tx) error) error {
		t.Helper()
		return database.WithTransaction(ctx, db, database.DefaultTxOptions(), fn)
	}

	err := inTx(t, func(tx *sql.Tx) error {
		return store.TryDecrement(ctx, tx, product.ID, models.KindSellable, 3)
	})
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	after, _ := store.GetProduct(ctx, db, product.ID)
	if after.AvailableQuantity != 2 {
		t.Errorf("Expected quantity 2, got %d", after.AvailableQuantity)
	}

	// Exceeding the counter fails with no partial effect.
	err = inTx(t, func(tx *sql.Tx) error {
		return store.TryDecrement(ctx, tx, product.ID, models.KindSellable, 3)
	})
	var stockErr *database.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected insufficient stock, got: %v", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 3 {
		t.Errorf("Expected available=2 requested=3, got %+v", stockErr)
	}

	after, _ = store.GetProduct(ctx, db, product.ID)
	if after.AvailableQuantity != 2 {
		t.Errorf("Failed decrement must not change the counter, got %d", after.AvailableQuantity)
	}

	// Wrong kind behaves as not found.
	err = inTx(t, func(tx *sql.Tx) error {
		return store.TryDecrement(ctx, tx, product.ID, models.KindRentable, 1)
	})
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected not found for kind mismatch, got: %v", err)
	}

	err = inTx(t, func(tx *sql.Tx) error {
		return store.Restore(ctx, tx, product.ID, models.KindSellable, 3)
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	after, _ = store.GetProduct(ctx, db, product.ID)
	if after.AvailableQuantity != 5 {
		t.Errorf("Expected quantity 5 after restore, got %d", after.AvailableQuantity)
	}

	// Restoring into a missing product is a no-op, not an error.
	err = inTx(t, func(tx *sql.Tx) error {
		return store.Restore(ctx, tx, 999999, models.KindSellable, 3)
	})
	if err != nil {
		t.Errorf("Restore of missing product must not fail: %v", err)
	}
}

func TestSetQuantityOptimistic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := createProduct(t, db, "OPT-001", models.KindRentable, 30, 0)

	if product.AvailabilityStatus != models.AvailabilityUnavailable {
		t.Errorf("Empty rental pool should start unavailable, got %q", product.AvailabilityStatus)
	}

	if err := store.SetQuantityOptimistic(ctx, db, product.ID, 6, product.Version); err != nil {
		t.Fatalf("Restock: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.AvailableQuantity != 6 {
		t.Errorf("Expected quantity 6, got %d", after.AvailableQuantity)
	}
	if after.AvailabilityStatus != models.AvailabilityAvailable {
		t.Errorf("Restock should flip marker to available, got %q", after.AvailabilityStatus)
	}

	// Stale version loses.
	err = store.SetQuantityOptimistic(ctx, db, product.ID, 10, product.Version)
	if !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}
}

func TestListProducts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for _, sku := range []string{"LIST-001", "LIST-002", "LIST-003"} {
		createProduct(t, db, sku, models.KindSellable, 10, 5)
	}

	page, err := store.ListProducts(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Expected total 3, got %d", page.Total)
	}
	if page.TotalPages != 2 {
		t.Errorf("Expected 2 pages, got %d", page.TotalPages)
	}

	products := page.Items.([]models.Product)
	if len(products) != 2 {
		t.Errorf("Expected 2 products on page, got %d", len(products))
	}
}
