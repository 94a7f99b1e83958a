// Package stock adapts the inventory context to the orders ports.
package stock

import (
	"context"

	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

var (
	_ ports.StockCoordinator = (*Coordinator)(nil)
	_ ports.Catalog          = (*Coordinator)(nil)
)

// Coordinator bridges order line items to the stock coordinator and serves as
// the checkout price snapshot source.
type Coordinator struct {
	inventory *invapp.Service
}

// NewCoordinator wraps the inventory service.
func NewCoordinator(inventory *invapp.Service) *Coordinator {
	return &Coordinator{inventory: inventory}
}

// Reserve holds stock for the order, all lines or none.
func (c *Coordinator) Reserve(ctx context.Context, lines []ports.StockLine) error {
	return c.inventory.Reserve(ctx, toInventoryLines(lines))
}

// Release compensates a reservation.
func (c *Coordinator) Release(ctx context.Context, lines []ports.StockLine) error {
	return c.inventory.Release(ctx, toInventoryLines(lines))
}

// Commit converts a reservation into a permanent decrement.
func (c *Coordinator) Commit(ctx context.Context, lines []ports.StockLine) error {
	return c.inventory.Commit(ctx, toInventoryLines(lines))
}

// ProductSnapshot reads the name and unit price copied into line items.
func (c *Coordinator) ProductSnapshot(ctx context.Context, productID string) (string, int64, error) {
	item, err := c.inventory.Get(ctx, productID)
	if err != nil {
		return "", 0, err
	}
	return item.Name, item.UnitPrice, nil
}

func toInventoryLines(lines []ports.StockLine) []invdomain.Line {
	result := make([]invdomain.Line, 0, len(lines))
	for _, line := range lines {
		result = append(result, invdomain.Line{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return result
}
