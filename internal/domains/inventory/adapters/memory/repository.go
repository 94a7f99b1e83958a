package memory

import (
	"context"
	"sync"

	"github.com/commercekit/orderflow/internal/domains/inventory/domain"
	"github.com/commercekit/orderflow/internal/domains/inventory/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository provides an in-memory implementation for development and tests.
// The mutex makes each Apply atomic, matching the conditional-update contract.
type Repository struct {
	mu    sync.Mutex
	items map[string]*domain.StockItem
}

// NewRepository constructs an empty in-memory store.
func NewRepository() *Repository {
	return &Repository{items: map[string]*domain.StockItem{}}
}

// Get returns a copy of the stock item.
func (r *Repository) Get(_ context.Context, productID string) (*domain.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

// Apply performs the adjustment atomically under the store lock.
func (r *Repository) Apply(_ context.Context, productID string, adj domain.Adjustment) (*domain.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if adj.RequireAvailable > 0 && item.Inventory < adj.RequireAvailable && !item.AllowBackorder {
		return nil, ports.ErrConditionFailed
	}
	if adj.RequireReserved > 0 && item.Reserved < adj.RequireReserved {
		return nil, ports.ErrConditionFailed
	}
	item.Inventory += adj.InventoryDelta
	item.Reserved += adj.ReservedDelta
	item.SoldCount += adj.SoldDelta
	copied := *item
	return &copied, nil
}

// Upsert creates or replaces a stock row.
func (r *Repository) Upsert(_ context.Context, item *domain.StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.items[item.ProductID] = &copied
	return nil
}

// List returns copies of all stock items.
func (r *Repository) List(_ context.Context) ([]*domain.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*domain.StockItem, 0, len(r.items))
	for _, item := range r.items {
		copied := *item
		items = append(items, &copied)
	}
	return items, nil
}
