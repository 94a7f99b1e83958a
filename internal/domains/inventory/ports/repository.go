package ports

import (
	"context"
	"errors"

	"github.com/commercekit/orderflow/internal/domains/inventory/domain"
)

var (
	ErrNotFound = errors.New("stock item not found")
	// ErrConditionFailed signals the adjustment's requirements did not hold.
	ErrConditionFailed = errors.New("stock condition not met")
	// ErrContention signals a transient concurrent-update conflict worth retrying.
	ErrContention = errors.New("stock update contention")
)

// Repository stores per-product stock rows. Apply is the only mutation path:
// one atomic conditional update, no read-modify-write.
type Repository interface {
	Get(ctx context.Context, productID string) (*domain.StockItem, error)
	// Apply performs the adjustment atomically and returns the updated item.
	// Unmet requirements yield ErrConditionFailed; transient write conflicts
	// yield ErrContention.
	Apply(ctx context.Context, productID string, adj domain.Adjustment) (*domain.StockItem, error)
	Upsert(ctx context.Context, item *domain.StockItem) error
	List(ctx context.Context) ([]*domain.StockItem, error)
}
