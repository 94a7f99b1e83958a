package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/orderflow/internal/domains/orders/application/types"
	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

// maxSaveAttempts bounds the reload-and-retry loop on version conflicts.
const maxSaveAttempts = 3

// errNoChange short-circuits a mutation that turned out to be a no-op.
var errNoChange = errors.New("no state change")

// Service orchestrates the order lifecycle. It owns every mutation of the
// Order aggregate; payments and returns go through it rather than the
// repository.
type Service struct {
	repo     ports.Repository
	stock    ports.StockCoordinator
	catalog  ports.Catalog
	pricing  ports.Pricing
	notifier ports.Notifier

	taxRateBps int64
	now        func() time.Time
	newID      func() string
}

// Option customizes the service.
type Option func(*Service)

// WithTaxRateBps sets the flat tax rate in basis points applied at checkout.
func WithTaxRateBps(bps int64) Option {
	return func(s *Service) { s.taxRateBps = bps }
}

// WithClock overrides the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides aggregate ID generation for deterministic testing.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService wires the order lifecycle with its collaborators.
func NewService(repo ports.Repository, stock ports.StockCoordinator, catalog ports.Catalog, pricing ports.Pricing, notifier ports.Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		stock:    stock,
		catalog:  catalog,
		pricing:  pricing,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateOrder validates the cart, snapshots prices, reserves stock, prices the
// order, and persists it pending/unpaid. Reservation is compensated if any
// later step fails.
func (s *Service) CreateOrder(ctx context.Context, input types.CreateOrderInput) (*domain.Order, error) {
	shipping := domain.ShippingAddress{
		Name:       input.Shipping.Name,
		Line1:      input.Shipping.Line1,
		City:       input.Shipping.City,
		PostalCode: input.Shipping.PostalCode,
		Country:    input.Shipping.Country,
	}
	if err := shipping.Validate(); err != nil {
		return nil, mapError(err)
	}
	if len(input.Items) == 0 {
		return nil, mapError(domain.ErrNoItems)
	}

	items := make([]domain.LineItem, 0, len(input.Items))
	lines := make([]ports.StockLine, 0, len(input.Items))
	for _, cartItem := range input.Items {
		if cartItem.Quantity <= 0 {
			return nil, mapError(domain.ErrInvalidQuantity)
		}
		name, unitPrice, err := s.catalog.ProductSnapshot(ctx, cartItem.ProductID)
		if err != nil {
			return nil, mapError(err)
		}
		discount, err := s.pricing.ItemDiscount(ctx, cartItem.ProductID, cartItem.Quantity, unitPrice)
		if err != nil {
			return nil, mapError(err)
		}
		items = append(items, domain.LineItem{
			ProductID: cartItem.ProductID,
			Name:      name,
			Quantity:  cartItem.Quantity,
			UnitPrice: unitPrice,
			Discount:  discount,
		})
		lines = append(lines, ports.StockLine{ProductID: cartItem.ProductID, Quantity: cartItem.Quantity})
	}

	if err := s.stock.Reserve(ctx, lines); err != nil {
		return nil, mapError(err)
	}

	order, err := domain.NewOrder(s.newID(), s.newNumber(), input.UserID, input.Currency, items, shipping)
	if err != nil {
		s.releaseQuietly(ctx, lines)
		return nil, mapError(err)
	}
	order.ShippingPrice = input.ShippingPrice
	order.PriorityLevel = input.PriorityLevel
	order.TaxAmount = order.Subtotal * s.taxRateBps / 10000
	order.Recalculate()

	if code := strings.TrimSpace(input.CouponCode); code != "" {
		if err := s.pricing.ApplyCoupon(ctx, order, code); err != nil {
			s.releaseQuietly(ctx, lines)
			return nil, mapError(err)
		}
	}
	if input.RedeemPoints > 0 {
		if err := s.pricing.RedeemPoints(ctx, order, input.RedeemPoints); err != nil {
			s.releaseQuietly(ctx, lines)
			return nil, mapError(err)
		}
	}
	if err := order.CheckInvariants(); err != nil {
		order.Flag(err.Error())
	}

	saved, err := s.repo.Create(ctx, order)
	if err != nil {
		s.releaseQuietly(ctx, lines)
		if order.LoyaltyPointsRedeemed > 0 {
			_ = s.pricing.RefundPoints(ctx, order)
		}
		return nil, mapError(err)
	}
	s.publish(ctx, domain.OrderCreated{
		BaseEvent: domain.BaseEvent{Timestamp: s.now()},
		OrderID:   saved.ID,
		Number:    saved.Number,
		UserID:    saved.UserID,
		Total:     saved.Total,
	})
	return saved, nil
}

// GetOrder loads a single order by internal ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

// GetOrderByNumber loads a single order by its human-readable number.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

// ListOrders returns orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// ApplyCoupon prices a coupon into an existing order that has not started
// payment. Scope, expiry, and usage rules are enforced by the pricing ledger.
func (s *Service) ApplyCoupon(ctx context.Context, orderID, code string) (*domain.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	if order.Status != domain.StatusPending || order.PaymentStatus != domain.PaymentUnpaid {
		return nil, fmt.Errorf("%w: coupons apply only to pending unpaid orders", ErrInvalidInput)
	}
	if order.CouponCode != "" {
		return nil, fmt.Errorf("%w: order already carries coupon %s", ErrInvalidInput, order.CouponCode)
	}
	if err := s.pricing.ApplyCoupon(ctx, order, code); err != nil {
		return nil, mapError(err)
	}
	saved, err := s.repo.Save(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}
	return saved, nil
}

// RedeemPoints debits the user's loyalty balance against an existing order
// that has not started payment. One redemption per order; the balance is
// credited back if the write loses.
func (s *Service) RedeemPoints(ctx context.Context, orderID string, points int64) (*domain.Order, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalidInput)
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	if order.Status != domain.StatusPending || order.PaymentStatus != domain.PaymentUnpaid {
		return nil, fmt.Errorf("%w: points apply only to pending unpaid orders", ErrInvalidInput)
	}
	if order.LoyaltyPointsRedeemed > 0 {
		return nil, fmt.Errorf("%w: order already redeemed points", ErrInvalidInput)
	}
	if err := s.pricing.RedeemPoints(ctx, order, points); err != nil {
		return nil, mapError(err)
	}
	saved, err := s.repo.Save(ctx, order)
	if err != nil {
		_ = s.pricing.RefundPoints(ctx, order)
		return nil, mapError(err)
	}
	return saved, nil
}

// UpdateStatus moves an order along the allowed-edges table. Transition into
// cancelled releases the stock reservation. Transition into returned is
// reserved for the return workflow.
func (s *Service) UpdateStatus(ctx context.Context, input types.UpdateStatusInput) (*domain.Order, error) {
	if input.Status == domain.StatusReturned {
		return nil, fmt.Errorf("%w: returned is set by the return workflow", domain.ErrInvalidTransition)
	}
	var from domain.Status
	order, err := s.mutate(ctx, input.OrderID, func(o *domain.Order) error {
		from = o.Status
		return o.Transition(input.Status, input.Reason)
	})
	if err != nil {
		return nil, err
	}
	if input.Status == domain.StatusCancelled {
		s.compensateCancellation(ctx, order)
	}
	s.publish(ctx, domain.OrderStatusChanged{
		BaseEvent:  domain.BaseEvent{Timestamp: s.now()},
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   order.Status,
		Reason:     input.Reason,
	})
	return order, nil
}

// MarkAsPaid records a captured payment, idempotent on transaction ID.
// Crossing the full-payment threshold commits the stock reservation and awards
// loyalty points, each at most once per order.
func (s *Service) MarkAsPaid(ctx context.Context, input types.MarkAsPaidInput) (*domain.Order, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	var crossed bool
	order, err := s.mutate(ctx, input.OrderID, func(o *domain.Order) error {
		if o.ComplianceStatus == domain.ComplianceFlagged {
			return ErrComplianceHold
		}
		if applied := o.ApplyPayment(input.TransactionID, input.Amount); !applied {
			return errNoChange
		}
		crossed = o.IsPaidInFull() && (!o.StockCommitted || !o.PointsAwarded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !crossed {
		return order, nil
	}
	order, err = s.settle(ctx, order)
	if err != nil {
		return order, err
	}
	s.publish(ctx, domain.OrderPaid{
		BaseEvent:     domain.BaseEvent{Timestamp: s.now()},
		OrderID:       order.ID,
		TransactionID: input.TransactionID,
		AmountPaid:    order.AmountPaid,
	})
	return order, nil
}

// MarkPaymentFailed flips the payment axis to failed after retries were
// exhausted upstream. The fulfillment axis is untouched.
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		o.PaymentStatus = domain.PaymentFailed
		o.AddNote("payment failed: " + reason)
		return nil
	})
}

// RecordRefund applies a partial or full refund to the order's payment axis.
// The actual provider call belongs to the payments context.
func (s *Service) RecordRefund(ctx context.Context, orderID string, amount int64, reason string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.ApplyRefund(amount, reason)
	})
}

// SplitOrder carves the selected line items into a new order with recomputed
// totals, shrinking the original accordingly. Item totals across both orders
// equal the original pre-split item total.
func (s *Service) SplitOrder(ctx context.Context, input types.SplitOrderInput) (*types.SplitOrderResult, error) {
	selected := map[int]bool{}
	for _, idx := range input.ItemIndices {
		selected[idx] = true
	}
	if len(selected) == 0 {
		return nil, mapError(domain.ErrEmptySplit)
	}

	var carved []domain.LineItem
	original, err := s.mutate(ctx, input.OrderID, func(o *domain.Order) error {
		if len(selected) >= len(o.Items) {
			return domain.ErrEmptySplit
		}
		var kept []domain.LineItem
		carved = carved[:0]
		for i, item := range o.Items {
			if selected[i] {
				carved = append(carved, item)
			} else {
				kept = append(kept, item)
			}
		}
		if len(carved) == 0 {
			return domain.ErrEmptySplit
		}
		o.Items = kept
		o.Recalculate()
		o.AddNote(fmt.Sprintf("split: %d item(s) moved to a new order", len(carved)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	split, err := domain.NewOrder(s.newID(), s.newNumber(), original.UserID, original.Currency, carved, original.Shipping)
	if err != nil {
		return nil, s.restoreSplit(ctx, input.OrderID, carved, mapError(err))
	}
	split.PriorityLevel = original.PriorityLevel
	split.AddNote("created by splitting order " + original.Number)
	saved, err := s.repo.Create(ctx, split)
	if err != nil {
		return nil, s.restoreSplit(ctx, input.OrderID, carved, mapError(err))
	}
	s.publish(ctx, domain.OrderSplit{
		BaseEvent:  domain.BaseEvent{Timestamp: s.now()},
		OrderID:    original.ID,
		NewOrderID: saved.ID,
	})
	return &types.SplitOrderResult{Original: original, Split: saved}, nil
}

// restoreSplit re-attaches carved items when creating the new order failed.
func (s *Service) restoreSplit(ctx context.Context, orderID string, carved []domain.LineItem, cause error) error {
	_, err := s.mutate(ctx, orderID, func(o *domain.Order) error {
		o.Items = append(o.Items, carved...)
		o.Recalculate()
		o.AddNote("split aborted, items restored")
		return nil
	})
	if err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// CancelOrder cancels an order, releases its reservation, and credits back any
// redeemed loyalty points. It never refunds money; refunds are explicit.
func (s *Service) CancelOrder(ctx context.Context, input types.CancelOrderInput) (*domain.Order, error) {
	order, err := s.mutate(ctx, input.OrderID, func(o *domain.Order) error {
		if err := o.Cancellable(); err != nil {
			return err
		}
		return o.Transition(domain.StatusCancelled, input.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.compensateCancellation(ctx, order)
	s.publish(ctx, domain.OrderCancelled{
		BaseEvent: domain.BaseEvent{Timestamp: s.now()},
		OrderID:   order.ID,
		Reason:    input.Reason,
	})
	return order, nil
}

// RequestReturn opens a return request on a delivered order.
func (s *Service) RequestReturn(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.RequestReturn(reason, s.now())
	})
}

// ResolveReturn applies the admin decision to an open return request. The
// processed transition moves the order into returned; the surrounding refund
// and restock live in the returns workflow.
func (s *Service) ResolveReturn(ctx context.Context, orderID string, action types.ResolveReturnAction, note string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		switch action {
		case types.ReturnActionApprove, types.ReturnActionReject:
			if o.ReturnRequest.Status != domain.ReturnRequested {
				return domain.ErrReturnNotRequested
			}
			o.ReturnRequest.Status = domain.ReturnStatus(action)
		case types.ReturnActionProcess:
			if o.ReturnRequest.Status != domain.ReturnApproved {
				return domain.ErrReturnNotRequested
			}
			o.ReturnRequest.Status = domain.ReturnProcessed
			if err := o.Transition(domain.StatusReturned, "return processed"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown return action %q", ErrInvalidInput, action)
		}
		o.ReturnRequest.ResolvedAt = s.now()
		o.ReturnRequest.Note = note
		o.AddNote(fmt.Sprintf("return %s: %s", o.ReturnRequest.Status, note))
		return nil
	})
}

// mutate implements the optimistic-concurrency loop: load, apply, save, and on
// a version conflict reload and retry up to maxSaveAttempts. An invariant
// violation after mutation flags the order and halts the operation.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, mapError(err)
		}
		if err := fn(order); err != nil {
			if errors.Is(err, errNoChange) {
				return order, nil
			}
			return nil, mapError(err)
		}
		if err := order.CheckInvariants(); err != nil {
			order.Flag(err.Error())
			if flagged, saveErr := s.repo.Save(ctx, order); saveErr == nil {
				order = flagged
			}
			return order, fmt.Errorf("%w: %w", ErrComplianceHold, err)
		}
		saved, err := s.repo.Save(ctx, order)
		if err == nil {
			return saved, nil
		}
		if errors.Is(err, ports.ErrVersionConflict) && attempt+1 < maxSaveAttempts {
			continue
		}
		return nil, mapError(err)
	}
}

// settle runs the at-most-once paid-threshold side effects: stock commit and
// loyalty accrual, then persists the guards.
func (s *Service) settle(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	lines := stockLines(order.Items)
	if !order.StockCommitted {
		if err := s.stock.Commit(ctx, lines); err != nil {
			return order, mapError(err)
		}
	}
	var earned int64
	if !order.PointsAwarded {
		points, err := s.pricing.EarnPoints(ctx, order)
		if err != nil {
			return order, mapError(err)
		}
		earned = points
	}
	return s.mutate(ctx, order.ID, func(o *domain.Order) error {
		if o.StockCommitted && o.PointsAwarded {
			return errNoChange
		}
		o.StockCommitted = true
		if !o.PointsAwarded {
			o.PointsAwarded = true
			o.LoyaltyPointsEarned = earned
			o.AddNote(fmt.Sprintf("loyalty: %d point(s) earned", earned))
		}
		return nil
	})
}

// compensateCancellation releases held stock and credits back redeemed points.
// Committed stock stays committed; a cancelled-but-paid order is reconciled
// through an explicit refund.
func (s *Service) compensateCancellation(ctx context.Context, order *domain.Order) {
	if !order.StockCommitted {
		s.releaseQuietly(ctx, stockLines(order.Items))
	}
	if order.LoyaltyPointsRedeemed > 0 {
		_ = s.pricing.RefundPoints(ctx, order)
	}
}

func (s *Service) releaseQuietly(ctx context.Context, lines []ports.StockLine) {
	_ = s.stock.Release(ctx, lines)
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, event)
	}
}

func (s *Service) newNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", s.now().UTC().Format("20060102"), suffix)
}

func stockLines(items []domain.LineItem) []ports.StockLine {
	lines := make([]ports.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, ports.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

var _ ports.Service = (*Service)(nil)
