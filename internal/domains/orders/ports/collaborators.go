package ports

import (
	"context"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
)

// StockLine identifies a quantity of one product held or moved by the
// stock coordinator on behalf of an order.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// StockCoordinator is the inventory collaborator. Reserve is all-or-nothing
// across the given lines; Release compensates; Commit converts a reservation
// into a permanent decrement.
type StockCoordinator interface {
	Reserve(ctx context.Context, lines []StockLine) error
	Release(ctx context.Context, lines []StockLine) error
	Commit(ctx context.Context, lines []StockLine) error
}

// Catalog reads the price snapshot source for checkout. The engine never holds
// a live product reference; it copies price and name into the line item.
type Catalog interface {
	ProductSnapshot(ctx context.Context, productID string) (name string, unitPrice int64, err error)
}

// Pricing is the discount-ledger collaborator.
type Pricing interface {
	// ItemDiscount returns the per-item bulk/tiered discount in minor units.
	ItemDiscount(ctx context.Context, productID string, quantity, unitPrice int64) (int64, error)
	// ApplyCoupon validates the code against the order and sets its discount fields.
	ApplyCoupon(ctx context.Context, order *domain.Order, code string) error
	// RedeemPoints debits the user's balance and records the redemption on the order.
	RedeemPoints(ctx context.Context, order *domain.Order, points int64) error
	// RefundPoints credits redeemed points back, on cancellation.
	RefundPoints(ctx context.Context, order *domain.Order) error
	// EarnPoints computes and credits loyalty points for a fully paid order.
	EarnPoints(ctx context.Context, order *domain.Order) (int64, error)
}

// Notifier is a fire-and-forget sink for order events. Implementations must
// not block order processing; failures are logged, never surfaced.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event)
}
