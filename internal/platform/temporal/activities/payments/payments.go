package payments

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
)

const (
	// CaptureChargeActivityName finalizes an authorized charge at the provider.
	CaptureChargeActivityName = "payments.activities.CaptureCharge"
	// MarkOrderPaidActivityName settles the captured amount on the order.
	MarkOrderPaidActivityName = "payments.activities.MarkOrderPaid"
)

// Activities groups the activities of the payment settlement workflow.
type Activities struct {
	payments paymentsports.Service
	orders   paymentsports.OrderSettler
}

// NewActivities wires the payments collaborators into the Temporal activities
// bundle. The payments service should be constructed with a no-op settler so
// MarkOrderPaid stays the single place that touches the order.
func NewActivities(payments paymentsports.Service, orders paymentsports.OrderSettler) *Activities {
	return &Activities{payments: payments, orders: orders}
}

// CaptureCharge captures the charge at the provider and records the attempt.
func (a *Activities) CaptureCharge(ctx context.Context, input paymentstypes.CaptureInput) (*paymentsdomain.PaymentAttempt, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.payments == nil {
		logger.Error("capture activity not initialized", "orderId", input.OrderID)
		return nil, errors.New("capture activity not initialized")
	}
	logger.Info("CaptureCharge activity started", "orderId", input.OrderID, "providerPaymentId", input.ProviderPaymentID)
	attempt, err := a.payments.CapturePayment(ctx, input)
	if err != nil {
		logger.Error("CaptureCharge activity failed", "orderId", input.OrderID, "error", err)
		return nil, err
	}
	logger.Info("CaptureCharge activity completed", "orderId", input.OrderID, "status", string(attempt.Status))
	return attempt, nil
}

// MarkOrderPaid applies the captured amount to the order. The order's
// transaction ledger makes repeated attempts a no-op.
func (a *Activities) MarkOrderPaid(ctx context.Context, input paymentstypes.CaptureInput) error {
	logger := activity.GetLogger(ctx)
	if a == nil || a.orders == nil {
		logger.Error("mark-paid activity not initialized", "orderId", input.OrderID)
		return errors.New("mark-paid activity not initialized")
	}
	logger.Info("MarkOrderPaid activity started", "orderId", input.OrderID)
	if err := a.orders.MarkAsPaid(ctx, input.OrderID, input.ProviderPaymentID, input.Amount); err != nil {
		logger.Error("MarkOrderPaid activity failed", "orderId", input.OrderID, "error", err)
		return err
	}
	logger.Info("MarkOrderPaid activity completed", "orderId", input.OrderID)
	return nil
}
