// Package ports declares the seams of the returns context.
package ports

import (
	"context"

	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/returns/application/types"
)

// Restocker credits returned units back into sellable inventory.
type Restocker interface {
	Restock(ctx context.Context, lines []types.RestockLine) error
}

// Service is the returns application surface consumed by transport adapters.
type Service interface {
	RequestReturn(ctx context.Context, orderID, reason string) (*ordersdomain.Order, error)
	ResolveReturnRequest(ctx context.Context, input types.ResolveInput) (*ordersdomain.Order, error)
	BulkRefundOrders(ctx context.Context, orderIDs []string, amount int64, reason string) []types.ItemResult
	BulkUpdateStatus(ctx context.Context, orderIDs []string, status ordersdomain.Status, reason string) []types.ItemResult
}
