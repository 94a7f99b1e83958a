// Package application implements the payment gateway adapter service: a
// registry of provider gateways behind one uniform API, the append-only
// attempt log, and idempotent webhook ingestion.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/orderflow/internal/domains/payments/application/types"
	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

const (
	defaultProviderAttempts = 3
	defaultProviderBackoff  = 200 * time.Millisecond
)

// ErrRefundExceedsPaid rejects refunds above the order's remaining paid amount.
var ErrRefundExceedsPaid = errors.New("refund exceeds remaining paid amount")

// Service coordinates provider gateways, the attempt log, and order
// settlement. Gateways are registered once at construction time; per-provider
// client state lives inside each gateway instance, never in package globals.
type Service struct {
	gateways map[string]ports.Gateway
	attempts ports.AttemptRepository
	events   ports.EventStore
	orders   ports.OrderSettler

	logger           *slog.Logger
	providerAttempts int
	providerBackoff  time.Duration
	now              func() time.Time
	newID            func() string
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

// WithProviderRetry bounds the retry loop around transient provider failures.
func WithProviderRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.providerAttempts = attempts
		}
		if backoff > 0 {
			s.providerBackoff = backoff
		}
	}
}

// WithClock overrides the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides attempt id generation for deterministic testing.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService wires the payments service. Gateways register afterwards via
// RegisterGateway.
func NewService(attempts ports.AttemptRepository, events ports.EventStore, orders ports.OrderSettler, opts ...Option) *Service {
	s := &Service{
		gateways:         map[string]ports.Gateway{},
		attempts:         attempts,
		events:           events,
		orders:           orders,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		providerAttempts: defaultProviderAttempts,
		providerBackoff:  defaultProviderBackoff,
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RegisterGateway adds a provider gateway to the registry.
func (s *Service) RegisterGateway(gw ports.Gateway) {
	if gw == nil {
		return
	}
	s.gateways[strings.ToLower(gw.Name())] = gw
}

// Gateways lists the registered provider names.
func (s *Service) Gateways() []string {
	names := make([]string, 0, len(s.gateways))
	for name := range s.gateways {
		names = append(names, name)
	}
	return names
}

// CreatePayment validates the request against the provider's configured
// limits before any network call, then starts the charge. Transient provider
// failures are retried with backoff; exhaustion marks the order's payment
// failed.
func (s *Service) CreatePayment(ctx context.Context, input types.CreatePaymentInput) (*domain.PaymentAttempt, error) {
	gw, err := s.gateway(input.Gateway)
	if err != nil {
		return nil, err
	}
	if err := gw.Limits().Check(input.Amount, input.Currency); err != nil {
		return nil, err
	}
	charge, err := s.withRetry(ctx, func(ctx context.Context) (*ports.Charge, error) {
		return gw.CreatePayment(ctx, ports.ChargeRequest{
			OrderID:  input.OrderID,
			Amount:   input.Amount,
			Currency: input.Currency,
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "payment creation failed",
			slog.String("gateway", gw.Name()),
			slog.String("order_id", input.OrderID),
			slog.String("error", err.Error()))
		if failErr := s.orders.MarkPaymentFailed(ctx, input.OrderID, err.Error()); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark order payment failed",
				slog.String("order_id", input.OrderID),
				slog.String("error", failErr.Error()))
		}
		return nil, err
	}
	attempt := s.newAttempt(input.OrderID, gw.Name(), charge, domain.TypeCharge, input.Amount, input.Currency, "")
	if err := s.attempts.Append(ctx, attempt); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payment created",
		slog.String("gateway", gw.Name()),
		slog.String("order_id", input.OrderID),
		slog.String("provider_payment_id", charge.ProviderPaymentID),
		slog.String("status", string(charge.Status)))
	return attempt, nil
}

// CapturePayment finalizes an authorized charge and, on completion, marks the
// order paid.
func (s *Service) CapturePayment(ctx context.Context, input types.CaptureInput) (*domain.PaymentAttempt, error) {
	gw, err := s.gateway(input.Gateway)
	if err != nil {
		return nil, err
	}
	charge, err := s.withRetry(ctx, func(ctx context.Context) (*ports.Charge, error) {
		return gw.CapturePayment(ctx, input.ProviderPaymentID)
	})
	if err != nil {
		if failErr := s.orders.MarkPaymentFailed(ctx, input.OrderID, err.Error()); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark order payment failed",
				slog.String("order_id", input.OrderID),
				slog.String("error", failErr.Error()))
		}
		return nil, err
	}
	attempt := s.newAttempt(input.OrderID, gw.Name(), charge, domain.TypeCharge, input.Amount, "", "")
	if err := s.attempts.Append(ctx, attempt); err != nil {
		return nil, err
	}
	if charge.Status == domain.StatusCompleted {
		if err := s.orders.MarkAsPaid(ctx, input.OrderID, charge.ProviderPaymentID, input.Amount); err != nil {
			return attempt, err
		}
	}
	return attempt, nil
}

// RefundPayment reverses part or all of a captured charge. The refundable cap
// is checked before the provider call; the order's ledger is the final
// arbiter when settlement records the refund.
func (s *Service) RefundPayment(ctx context.Context, input types.RefundInput) (*domain.PaymentAttempt, error) {
	gw, err := s.gateway(input.Gateway)
	if err != nil {
		return nil, err
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive refund amount", domain.ErrAmountOutOfRange)
	}
	refundable, err := s.orders.RefundableAmount(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Amount > refundable {
		return nil, fmt.Errorf("%w: %d requested, %d refundable", ErrRefundExceedsPaid, input.Amount, refundable)
	}
	charge, err := s.withRetry(ctx, func(ctx context.Context) (*ports.Charge, error) {
		return gw.RefundPayment(ctx, input.ProviderPaymentID, input.Amount, input.Reason)
	})
	if err != nil {
		return nil, err
	}
	attempt := s.newAttempt(input.OrderID, gw.Name(), charge, domain.TypeRefund, input.Amount, "", input.Reason)
	if err := s.attempts.Append(ctx, attempt); err != nil {
		return nil, err
	}
	if err := s.orders.RecordRefund(ctx, input.OrderID, input.Amount, input.Reason); err != nil {
		s.logger.ErrorContext(ctx, "provider refund succeeded but order ledger update failed",
			slog.String("order_id", input.OrderID),
			slog.String("provider_payment_id", input.ProviderPaymentID),
			slog.String("error", err.Error()))
		return attempt, err
	}
	s.logger.InfoContext(ctx, "payment refunded",
		slog.String("gateway", gw.Name()),
		slog.String("order_id", input.OrderID),
		slog.Int64("amount", input.Amount))
	return attempt, nil
}

// HandleWebhook verifies the delivery's signature, deduplicates it by
// provider event id, records the attempt, and settles the order. A repeated
// delivery is acknowledged as a no-op.
func (s *Service) HandleWebhook(ctx context.Context, gateway string, headers http.Header, rawBody []byte) (*types.WebhookResult, error) {
	gw, err := s.gateway(gateway)
	if err != nil {
		return nil, err
	}
	event, err := gw.VerifyWebhook(headers, rawBody)
	if err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	fresh, err := s.events.MarkProcessed(ctx, gw.Name(), event.ProviderEventID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.logger.InfoContext(ctx, "duplicate webhook delivery ignored",
			slog.String("gateway", gw.Name()),
			slog.String("provider_event_id", event.ProviderEventID))
		return &types.WebhookResult{Event: event, Duplicate: true}, nil
	}

	charge, err := s.attempts.FindCharge(ctx, gw.Name(), event.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// Provider notified us about a payment we never initiated.
			// Acknowledge so the provider stops retrying, but settle nothing.
			s.logger.WarnContext(ctx, "webhook for unknown payment",
				slog.String("gateway", gw.Name()),
				slog.String("provider_payment_id", event.ProviderPaymentID))
			return &types.WebhookResult{Event: event}, nil
		}
		return nil, err
	}

	amount := event.Amount
	if amount == 0 {
		amount = charge.Amount
	}
	attemptType := domain.TypeCharge
	if event.Status == domain.StatusRefunded {
		attemptType = domain.TypeRefund
	}
	attempt := &domain.PaymentAttempt{
		ID:                s.newID(),
		OrderID:           charge.OrderID,
		Gateway:           gw.Name(),
		ProviderPaymentID: event.ProviderPaymentID,
		ProviderEventID:   event.ProviderEventID,
		Amount:            amount,
		Currency:          charge.Currency,
		Type:              attemptType,
		Status:            event.Status,
		RawResponse:       string(rawBody),
		CreatedAt:         s.now().UTC(),
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		return nil, err
	}

	if err := s.settle(ctx, charge.OrderID, event, amount); err != nil {
		// Reopen the event so the provider's retry gets another settlement
		// attempt instead of a duplicate acknowledgement.
		if unmarkErr := s.events.Unmark(ctx, gw.Name(), event.ProviderEventID); unmarkErr != nil {
			s.logger.ErrorContext(ctx, "failed to reopen webhook event after settlement error",
				slog.String("gateway", gw.Name()),
				slog.String("provider_event_id", event.ProviderEventID),
				slog.String("error", unmarkErr.Error()))
		}
		return nil, err
	}
	return &types.WebhookResult{Event: event, OrderID: charge.OrderID}, nil
}

// GetStatus polls the provider for the canonical status of a payment.
func (s *Service) GetStatus(ctx context.Context, gateway, providerPaymentID string) (domain.AttemptStatus, error) {
	gw, err := s.gateway(gateway)
	if err != nil {
		return "", err
	}
	return gw.GetStatus(ctx, providerPaymentID)
}

// ListAttempts returns the attempt log for one order, oldest first.
func (s *Service) ListAttempts(ctx context.Context, orderID string) ([]*domain.PaymentAttempt, error) {
	return s.attempts.ListByOrder(ctx, orderID)
}

func (s *Service) settle(ctx context.Context, orderID string, event *domain.NormalizedEvent, amount int64) error {
	switch event.Status {
	case domain.StatusCompleted:
		return s.orders.MarkAsPaid(ctx, orderID, event.ProviderPaymentID, amount)
	case domain.StatusFailed, domain.StatusCancelled:
		return s.orders.MarkPaymentFailed(ctx, orderID, fmt.Sprintf("provider reported %s", event.Status))
	case domain.StatusRefunded:
		return s.orders.RecordRefund(ctx, orderID, amount, "provider webhook")
	}
	// pending/processing carry no settlement action.
	return nil
}

func (s *Service) gateway(name string) (ports.Gateway, error) {
	gw, ok := s.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, name)
	}
	return gw, nil
}

// withRetry retries transient provider failures with doubling backoff.
// Validation failures and signature errors are never retried.
func (s *Service) withRetry(ctx context.Context, call func(context.Context) (*ports.Charge, error)) (*ports.Charge, error) {
	backoff := s.providerBackoff
	var lastErr error
	for attempt := 0; attempt < s.providerAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		charge, err := call(ctx)
		if err == nil {
			return charge, nil
		}
		if !errors.Is(err, domain.ErrProvider) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("provider retries exhausted: %w", lastErr)
}

func (s *Service) newAttempt(orderID, gateway string, charge *ports.Charge, attemptType domain.AttemptType, amount int64, currency, reason string) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ID:                s.newID(),
		OrderID:           orderID,
		Gateway:           gateway,
		ProviderPaymentID: charge.ProviderPaymentID,
		Amount:            amount,
		Currency:          currency,
		Type:              attemptType,
		Status:            charge.Status,
		Reason:            reason,
		RawResponse:       charge.RawResponse,
		CreatedAt:         s.now().UTC(),
	}
}

var _ ports.Service = (*Service)(nil)
