// Package catalog resolves coupon-scope metadata from the inventory context.
package catalog

import (
	"context"

	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
	"github.com/commercekit/orderflow/internal/domains/pricing/ports"
)

var _ ports.CatalogMeta = (*Meta)(nil)

// Meta reads category/brand metadata from stock rows.
type Meta struct {
	inventory *invapp.Service
}

// NewMeta wraps the inventory service.
func NewMeta(inventory *invapp.Service) *Meta {
	return &Meta{inventory: inventory}
}

// Meta resolves the metadata for one product.
func (m *Meta) Meta(ctx context.Context, productID string) (domain.ProductMeta, error) {
	item, err := m.inventory.Get(ctx, productID)
	if err != nil {
		return domain.ProductMeta{}, err
	}
	return domain.ProductMeta{Category: item.Category, Brand: item.Brand}, nil
}
