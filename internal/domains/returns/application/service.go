// Package application implements the post-delivery return workflow: request,
// admin resolution, refund, and restock, plus the best-effort bulk
// operations built on the same collaborators.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
	"github.com/commercekit/orderflow/internal/domains/returns/application/types"
	"github.com/commercekit/orderflow/internal/domains/returns/ports"
)

// ErrNoSettledCharge signals a refund request against an order with no
// completed charge on record.
var ErrNoSettledCharge = errors.New("order has no settled charge to refund")

// Service drives the return workflow across the orders, payments, and
// inventory contexts.
type Service struct {
	orders    ordersports.Service
	payments  paymentsports.Service
	restocker ports.Restocker
	logger    *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the return workflow.
func NewService(orders ordersports.Service, payments paymentsports.Service, restocker ports.Restocker, opts ...Option) *Service {
	s := &Service{
		orders:    orders,
		payments:  payments,
		restocker: restocker,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RequestReturn opens a return request on a delivered order.
func (s *Service) RequestReturn(ctx context.Context, orderID, reason string) (*ordersdomain.Order, error) {
	return s.orders.RequestReturn(ctx, orderID, reason)
}

// ResolveReturnRequest applies an admin decision. Approval and rejection only
// move the request; processing transitions the order to returned, refunds the
// remaining paid amount, and credits undamaged goods back into stock.
func (s *Service) ResolveReturnRequest(ctx context.Context, input types.ResolveInput) (*ordersdomain.Order, error) {
	order, err := s.orders.ResolveReturn(ctx, input.OrderID, input.Action, input.Note)
	if err != nil {
		return nil, err
	}
	if input.Action != orderstypes.ReturnActionProcess {
		return order, nil
	}

	if amount := order.RemainingPaid(); amount > 0 {
		if err := s.refund(ctx, order.ID, amount, "return processed"); err != nil {
			// The order is already returned; surface the failed refund for
			// manual reconciliation instead of unwinding the return.
			return order, fmt.Errorf("return processed but refund failed: %w", err)
		}
	}
	if !input.Damaged {
		if err := s.restocker.Restock(ctx, restockLines(order)); err != nil {
			s.logger.ErrorContext(ctx, "restock after return failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()))
		}
	}
	return order, nil
}

// BulkRefundOrders refunds each order independently. An amount of zero means
// "refund whatever remains paid" per order.
func (s *Service) BulkRefundOrders(ctx context.Context, orderIDs []string, amount int64, reason string) []types.ItemResult {
	return runBulk(ctx, orderIDs, func(ctx context.Context, orderID string) error {
		itemAmount := amount
		if itemAmount == 0 {
			order, err := s.orders.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			itemAmount = order.RemainingPaid()
			if itemAmount == 0 {
				return nil
			}
		}
		return s.refund(ctx, orderID, itemAmount, reason)
	})
}

// BulkUpdateStatus transitions each order independently.
func (s *Service) BulkUpdateStatus(ctx context.Context, orderIDs []string, status ordersdomain.Status, reason string) []types.ItemResult {
	return runBulk(ctx, orderIDs, func(ctx context.Context, orderID string) error {
		_, err := s.orders.UpdateStatus(ctx, orderstypes.UpdateStatusInput{
			OrderID: orderID,
			Status:  status,
			Reason:  reason,
		})
		return err
	})
}

// refund resolves the order's settled charge and reverses the given amount
// through the gateway that took the money.
func (s *Service) refund(ctx context.Context, orderID string, amount int64, reason string) error {
	charge, err := s.settledCharge(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.payments.RefundPayment(ctx, paymentstypes.RefundInput{
		Gateway:           charge.Gateway,
		OrderID:           orderID,
		ProviderPaymentID: charge.ProviderPaymentID,
		Amount:            amount,
		Reason:            reason,
	})
	return err
}

// settledCharge returns the most recent completed charge attempt.
func (s *Service) settledCharge(ctx context.Context, orderID string) (*paymentsdomain.PaymentAttempt, error) {
	attempts, err := s.payments.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Type == paymentsdomain.TypeCharge && attempts[i].Status == paymentsdomain.StatusCompleted {
			return attempts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", ErrNoSettledCharge, orderID)
}

func restockLines(order *ordersdomain.Order) []types.RestockLine {
	lines := make([]types.RestockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, types.RestockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

var _ ports.Service = (*Service)(nil)
