package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorClassSerialization, ClassifyError(&pq.Error{Code: "40001"}))
	assert.Equal(t, ErrorClassDeadlock, ClassifyError(&pq.Error{Code: "40P01"}))
	assert.Equal(t, ErrorClassTransient, ClassifyError(&pq.Error{Code: "55P03"}))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(&pq.Error{Code: "23505"}))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(sql.ErrNoRows))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(ErrOrderNotFound))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(nil))

	// Wrapped driver errors still classify.
	wrapped := fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40001"})
	assert.Equal(t, ErrorClassSerialization, ClassifyError(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(&pq.Error{Code: "40P01"}))
	// Lock wait timeouts retry through the classifier rather than surfacing
	// a dedicated error to callers.
	assert.True(t, IsRetryable(&pq.Error{Code: "55P03"}))
	assert.False(t, IsRetryable(ErrInsufficientStock))
	assert.False(t, IsRetryable(ErrOrderNotFound))
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{ProductID: 42, Available: 3, Requested: 5}

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "available 3")
	assert.Contains(t, err.Error(), "requested 5")

	var stockErr *InsufficientStockError
	wrapped := fmt.Errorf("place order: %w", err)
	assert.True(t, errors.As(wrapped, &stockErr))
	assert.Equal(t, int64(42), stockErr.ProductID)
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: "shipped", To: "cancelled"}

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), `"shipped"`)
	assert.Contains(t, err.Error(), `"cancelled"`)
}
