package memory

import (
	"context"
	"sync"
	"time"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository provides an in-memory implementation for development and tests.
// It enforces the same version guard as the Postgres adapter.
type Repository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	byNumber map[string]string
	now      func() time.Time
}

// NewRepository constructs an empty in-memory store.
func NewRepository() *Repository {
	return &Repository{
		orders:   map[string]*domain.Order{},
		byNumber: map[string]string{},
		now:      time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (r *Repository) WithClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Create inserts a new aggregate at version 1.
func (r *Repository) Create(_ context.Context, order *domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := cloneOrder(order)
	stored.Version = 1
	stored.CreatedAt = r.now()
	stored.UpdatedAt = stored.CreatedAt
	r.orders[stored.ID] = stored
	r.byNumber[stored.Number] = stored.ID
	return cloneOrder(stored), nil
}

// Save persists a mutated aggregate guarded by its loaded version.
func (r *Repository) Save(_ context.Context, order *domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.orders[order.ID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if existing.Version != order.Version {
		return nil, ports.ErrVersionConflict
	}
	stored := cloneOrder(order)
	stored.Version = existing.Version + 1
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = r.now()
	r.orders[stored.ID] = stored
	return cloneOrder(stored), nil
}

// GetByID fetches an order by internal ID.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(order), nil
}

// GetByNumber fetches an order by its human-readable number.
func (r *Repository) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[number]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// List returns orders matching the filter.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, cloneOrder(order))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	copied := *order
	copied.Items = append([]domain.LineItem(nil), order.Items...)
	copied.Notes = append([]domain.Note(nil), order.Notes...)
	copied.AppliedTransactions = append([]string(nil), order.AppliedTransactions...)
	return &copied
}
