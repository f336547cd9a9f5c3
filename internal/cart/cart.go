// Package cart holds pre-order line items per customer in Redis. It is plain
// CRUD: checkout consumes a cart's contents as the candidate order, but all
// reservation state lives in the order store.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const cartTTL = 30 * 24 * time.Hour

// Line is one cart entry. UnitPrice is only meaningful for package lines,
// whose price cannot be snapshotted from an inventory row at checkout.
type Line struct {
	ProductID  int64              `json:"product_id"`
	Kind       models.ProductKind `json:"kind"`
	Name       string             `json:"name,omitempty"`
	Quantity   int                `json:"quantity"`
	RentalDays int                `json:"rental_days,omitempty"`
	UnitPrice  decimal.Decimal    `json:"unit_price,omitempty"`
}

type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func cartKey(customerID int64) string {
	return fmt.Sprintf("cart:%d", customerID)
}

func lineField(line Line) string {
	return fmt.Sprintf("%s:%d", line.Kind, line.ProductID)
}

// Add inserts or replaces the line for its product.
func (s *Store) Add(ctx context.Context, customerID int64, line Line) error {
	if line.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if !line.Kind.Valid() {
		return fmt.Errorf("unknown product kind %q", line.Kind)
	}

	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal cart line: %w", err)
	}

	key := cartKey(customerID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, lineField(line), payload)
	pipe.Expire(ctx, key, cartTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add cart line: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, customerID int64) ([]Line, error) {
	values, err := s.client.HGetAll(ctx, cartKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	lines := make([]Line, 0, len(values))
	for field, value := range values {
		var line Line
		if err := json.Unmarshal([]byte(value), &line); err != nil {
			return nil, fmt.Errorf("unmarshal cart line %s: %w", field, err)
		}
		lines = append(lines, line)
	}

	return lines, nil
}

func (s *Store) Remove(ctx context.Context, customerID int64, kind models.ProductKind, productID int64) error {
	field := lineField(Line{ProductID: productID, Kind: kind})
	if err := s.client.HDel(ctx, cartKey(customerID), field).Err(); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, customerID int64) error {
	if err := s.client.Del(ctx, cartKey(customerID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
