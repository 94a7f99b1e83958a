package ports

import (
	"context"
	"errors"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict signals a losing concurrent writer; callers reload and retry.
	ErrVersionConflict = errors.New("order version conflict")
)

// ListFilter narrows List results.
type ListFilter struct {
	UserID string
	Status domain.Status
	Limit  int
}

// Repository persists order aggregates with optimistic concurrency.
type Repository interface {
	// Create inserts a new aggregate at version 1.
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	// Save persists a mutated aggregate guarded by its loaded version.
	// A stale version yields ErrVersionConflict and leaves the row untouched.
	Save(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Order, error)
}
