package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

const tracerName = "github.com/commercekit/orderflow/internal/domains/orders/adapters/observability/service"

// Service decorates the orders application port with tracing, logging, and
// metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core service.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

// CreateOrder runs checkout with instrumentation.
func (s *Service) CreateOrder(ctx context.Context, input orderstypes.CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.CreateOrder",
		attribute.String("order.user_id", input.UserID),
		attribute.Int("order.item_count", len(input.Items)),
	)
	defer span.End()

	s.logInfo(ctx, "creating order", slog.String("user_id", input.UserID), slog.Int("items", len(input.Items)))
	order, err := s.inner.CreateOrder(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to create order", slog.String("user_id", input.UserID))
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.metrics.recordCreated(ctx)
	s.logInfo(ctx, "order created", slog.String("order_id", order.ID), slog.String("number", order.Number), slog.Int64("total", order.Total))
	return order, nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.GetOrder", attribute.String("order.id", id))
	defer span.End()

	order, err := s.inner.GetOrder(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load order", slog.String("order_id", id))
	}
	return order, nil
}

// GetOrderByNumber loads one order by its public number.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.GetOrderByNumber", attribute.String("order.number", number))
	defer span.End()

	order, err := s.inner.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load order by number", slog.String("number", number))
	}
	return order, nil
}

// ListOrders returns orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.ListOrders")
	defer span.End()

	orders, err := s.inner.ListOrders(ctx, filter)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list orders")
	}
	span.SetAttributes(attribute.Int("order.result.count", len(orders)))
	return orders, nil
}

// ApplyCoupon prices a coupon into an open order.
func (s *Service) ApplyCoupon(ctx context.Context, orderID, code string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.ApplyCoupon", attribute.String("order.id", orderID))
	defer span.End()

	order, err := s.inner.ApplyCoupon(ctx, orderID, code)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to apply coupon", slog.String("order_id", orderID))
	}
	s.logInfo(ctx, "coupon applied", slog.String("order_id", orderID), slog.String("code", order.CouponCode))
	return order, nil
}

// RedeemPoints converts loyalty points into an order discount.
func (s *Service) RedeemPoints(ctx context.Context, orderID string, points int64) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.RedeemPoints",
		attribute.String("order.id", orderID),
		attribute.Int64("loyalty.points", points),
	)
	defer span.End()

	order, err := s.inner.RedeemPoints(ctx, orderID, points)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to redeem points", slog.String("order_id", orderID))
	}
	s.logInfo(ctx, "points redeemed", slog.String("order_id", orderID), slog.Int64("points", points))
	return order, nil
}

// UpdateStatus transitions the fulfillment state machine.
func (s *Service) UpdateStatus(ctx context.Context, input orderstypes.UpdateStatusInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.UpdateStatus",
		attribute.String("order.id", input.OrderID),
		attribute.String("order.status.requested", string(input.Status)),
	)
	defer span.End()

	s.logInfo(ctx, "updating order status", slog.String("order_id", input.OrderID), slog.String("status", string(input.Status)))
	order, err := s.inner.UpdateStatus(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to update order status", slog.String("order_id", input.OrderID))
	}
	s.metrics.recordTransition(ctx, order.Status)
	s.logInfo(ctx, "order status updated", slog.String("order_id", order.ID), slog.String("status", string(order.Status)))
	return order, nil
}

// MarkAsPaid applies a settled payment.
func (s *Service) MarkAsPaid(ctx context.Context, input orderstypes.MarkAsPaidInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.MarkAsPaid",
		attribute.String("order.id", input.OrderID),
		attribute.Int64("payment.amount", input.Amount),
	)
	defer span.End()

	s.logInfo(ctx, "marking order paid", slog.String("order_id", input.OrderID), slog.Int64("amount", input.Amount))
	order, err := s.inner.MarkAsPaid(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to mark order paid", slog.String("order_id", input.OrderID))
	}
	s.metrics.recordPaid(ctx, input.Amount)
	s.logInfo(ctx, "order payment applied", slog.String("order_id", order.ID), slog.String("payment_status", string(order.PaymentStatus)))
	return order, nil
}

// MarkPaymentFailed flags a failed settlement.
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.MarkPaymentFailed", attribute.String("order.id", orderID))
	defer span.End()

	order, err := s.inner.MarkPaymentFailed(ctx, orderID, reason)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to mark payment failed", slog.String("order_id", orderID))
	}
	s.logInfo(ctx, "order payment failed", slog.String("order_id", orderID), slog.String("reason", reason))
	return order, nil
}

// RecordRefund applies a refund to the ledger.
func (s *Service) RecordRefund(ctx context.Context, orderID string, amount int64, reason string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.RecordRefund",
		attribute.String("order.id", orderID),
		attribute.Int64("refund.amount", amount),
	)
	defer span.End()

	s.logInfo(ctx, "recording refund", slog.String("order_id", orderID), slog.Int64("amount", amount))
	order, err := s.inner.RecordRefund(ctx, orderID, amount, reason)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to record refund", slog.String("order_id", orderID))
	}
	s.metrics.recordRefunded(ctx, amount)
	return order, nil
}

// SplitOrder carves line items into a new order.
func (s *Service) SplitOrder(ctx context.Context, input orderstypes.SplitOrderInput) (*orderstypes.SplitOrderResult, error) {
	ctx, span := s.startSpan(ctx, "Service.SplitOrder", attribute.String("order.id", input.OrderID))
	defer span.End()

	s.logInfo(ctx, "splitting order", slog.String("order_id", input.OrderID))
	result, err := s.inner.SplitOrder(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to split order", slog.String("order_id", input.OrderID))
	}
	if result != nil && result.Split != nil {
		span.SetAttributes(attribute.String("order.split.new_id", result.Split.ID))
		s.logInfo(ctx, "order split", slog.String("order_id", input.OrderID), slog.String("new_order_id", result.Split.ID))
	}
	return result, nil
}

// CancelOrder cancels and compensates an order.
func (s *Service) CancelOrder(ctx context.Context, input orderstypes.CancelOrderInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.CancelOrder", attribute.String("order.id", input.OrderID))
	defer span.End()

	s.logInfo(ctx, "cancelling order", slog.String("order_id", input.OrderID), slog.String("reason", input.Reason))
	order, err := s.inner.CancelOrder(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to cancel order", slog.String("order_id", input.OrderID))
	}
	s.metrics.recordCancelled(ctx)
	s.logInfo(ctx, "order cancelled", slog.String("order_id", order.ID))
	return order, nil
}

// RequestReturn opens a return request.
func (s *Service) RequestReturn(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.RequestReturn", attribute.String("order.id", orderID))
	defer span.End()

	order, err := s.inner.RequestReturn(ctx, orderID, reason)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to request return", slog.String("order_id", orderID))
	}
	s.logInfo(ctx, "return requested", slog.String("order_id", orderID))
	return order, nil
}

// ResolveReturn applies an admin decision to a return request.
func (s *Service) ResolveReturn(ctx context.Context, orderID string, action orderstypes.ResolveReturnAction, note string) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "Service.ResolveReturn",
		attribute.String("order.id", orderID),
		attribute.String("return.action", string(action)),
	)
	defer span.End()

	order, err := s.inner.ResolveReturn(ctx, orderID, action, note)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to resolve return", slog.String("order_id", orderID))
	}
	s.logInfo(ctx, "return resolved", slog.String("order_id", orderID), slog.String("action", string(action)))
	return order, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.logError(ctx, msg, err, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	ordersCreated   metric.Int64Counter
	ordersCancelled metric.Int64Counter
	transitions     metric.Int64Counter
	amountPaid      metric.Int64Counter
	amountRefunded  metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	ordersCreated, _ := m.Int64Counter("orders.service.created", metric.WithDescription("Number of orders created"))
	ordersCancelled, _ := m.Int64Counter("orders.service.cancelled", metric.WithDescription("Number of orders cancelled"))
	transitions, _ := m.Int64Counter("orders.service.transitions", metric.WithDescription("Number of fulfillment transitions"))
	amountPaid, _ := m.Int64Counter("orders.service.amount_paid", metric.WithDescription("Minor units settled onto orders"))
	amountRefunded, _ := m.Int64Counter("orders.service.amount_refunded", metric.WithDescription("Minor units refunded"))
	return serviceMetrics{
		ordersCreated:   ordersCreated,
		ordersCancelled: ordersCancelled,
		transitions:     transitions,
		amountPaid:      amountPaid,
		amountRefunded:  amountRefunded,
	}
}

func (m serviceMetrics) recordCreated(ctx context.Context) {
	addCounter(ctx, m.ordersCreated, 1)
}

func (m serviceMetrics) recordCancelled(ctx context.Context) {
	addCounter(ctx, m.ordersCancelled, 1)
}

func (m serviceMetrics) recordTransition(ctx context.Context, status domain.Status) {
	addCounter(ctx, m.transitions, 1, attribute.String("order.status", string(status)))
}

func (m serviceMetrics) recordPaid(ctx context.Context, amount int64) {
	addCounter(ctx, m.amountPaid, amount)
}

func (m serviceMetrics) recordRefunded(ctx context.Context, amount int64) {
	addCounter(ctx, m.amountRefunded, amount)
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
