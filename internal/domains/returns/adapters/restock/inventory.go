// Package restock adapts the inventory service to the returns restocker port.
package restock

import (
	"context"

	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	"github.com/commercekit/orderflow/internal/domains/returns/application/types"
	"github.com/commercekit/orderflow/internal/domains/returns/ports"
)

var _ ports.Restocker = (*Inventory)(nil)

// Inventory credits returned units through the stock coordinator.
type Inventory struct {
	stock *invapp.Service
}

// NewInventory wraps the inventory service.
func NewInventory(stock *invapp.Service) *Inventory {
	return &Inventory{stock: stock}
}

// Restock converts the returned lines into a stock credit.
func (i *Inventory) Restock(ctx context.Context, lines []types.RestockLine) error {
	converted := make([]invdomain.Line, 0, len(lines))
	for _, line := range lines {
		converted = append(converted, invdomain.Line{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return i.stock.Restock(ctx, converted)
}
