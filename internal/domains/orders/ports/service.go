package ports

import (
	"context"

	"github.com/commercekit/orderflow/internal/domains/orders/application/types"
	"github.com/commercekit/orderflow/internal/domains/orders/domain"
)

// Service exposes the order lifecycle use cases to adapters and sibling
// contexts (payments, returns).
type Service interface {
	CreateOrder(ctx context.Context, input types.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*domain.Order, error)
	ApplyCoupon(ctx context.Context, orderID, code string) (*domain.Order, error)
	RedeemPoints(ctx context.Context, orderID string, points int64) (*domain.Order, error)
	UpdateStatus(ctx context.Context, input types.UpdateStatusInput) (*domain.Order, error)
	MarkAsPaid(ctx context.Context, input types.MarkAsPaidInput) (*domain.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID, reason string) (*domain.Order, error)
	RecordRefund(ctx context.Context, orderID string, amount int64, reason string) (*domain.Order, error)
	SplitOrder(ctx context.Context, input types.SplitOrderInput) (*types.SplitOrderResult, error)
	CancelOrder(ctx context.Context, input types.CancelOrderInput) (*domain.Order, error)
	RequestReturn(ctx context.Context, orderID, reason string) (*domain.Order, error)
	ResolveReturn(ctx context.Context, orderID string, action types.ResolveReturnAction, note string) (*domain.Order, error)
}
