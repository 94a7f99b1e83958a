// Package settlement bridges the payments context to the order lifecycle.
package settlement

import (
	"context"

	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
)

var _ paymentsports.OrderSettler = (*Orders)(nil)

// Orders adapts the orders application service to the payments settler port.
type Orders struct {
	service ordersports.Service
}

// NewOrders wraps the orders service.
func NewOrders(service ordersports.Service) *Orders {
	return &Orders{service: service}
}

// MarkAsPaid applies a payment to the order.
func (o *Orders) MarkAsPaid(ctx context.Context, orderID, transactionID string, amount int64) error {
	_, err := o.service.MarkAsPaid(ctx, orderstypes.MarkAsPaidInput{
		OrderID:       orderID,
		TransactionID: transactionID,
		Amount:        amount,
	})
	return err
}

// MarkPaymentFailed flags a failed settlement on the order.
func (o *Orders) MarkPaymentFailed(ctx context.Context, orderID, reason string) error {
	_, err := o.service.MarkPaymentFailed(ctx, orderID, reason)
	return err
}

// RecordRefund applies a refund to the order's ledger.
func (o *Orders) RecordRefund(ctx context.Context, orderID string, amount int64, reason string) error {
	_, err := o.service.RecordRefund(ctx, orderID, amount, reason)
	return err
}

// RefundableAmount reports the paid amount not yet refunded.
func (o *Orders) RefundableAmount(ctx context.Context, orderID string) (int64, error) {
	order, err := o.service.GetOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return order.RemainingPaid(), nil
}

// Noop discards settlement calls. The worker wires it into the payments
// service whose captures are settled by a dedicated workflow activity.
type Noop struct{}

var _ paymentsports.OrderSettler = Noop{}

func (Noop) MarkAsPaid(context.Context, string, string, int64) error   { return nil }
func (Noop) MarkPaymentFailed(context.Context, string, string) error   { return nil }
func (Noop) RecordRefund(context.Context, string, int64, string) error { return nil }
func (Noop) RefundableAmount(context.Context, string) (int64, error)   { return 0, nil }
