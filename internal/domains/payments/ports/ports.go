// Package ports declares the seams of the payments context: the gateway
// abstraction over external providers, the attempt log, webhook dedup, and
// the hook back into order settlement.
package ports

import (
	"context"
	"errors"
	"net/http"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
)

var ErrNotFound = errors.New("payment attempt not found")

// ChargeRequest describes an outbound payment creation.
type ChargeRequest struct {
	OrderID  string
	Amount   int64
	Currency string
}

// Charge is a provider's view of a payment after an API call.
type Charge struct {
	ProviderPaymentID string
	Status            domain.AttemptStatus
	RawResponse       string
}

// Gateway is the uniform capability set over the payment providers. Each
// implementation owns its signature scheme and status vocabulary mapping.
type Gateway interface {
	Name() string
	Limits() domain.Limits
	CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error)
	CapturePayment(ctx context.Context, providerPaymentID string) (*Charge, error)
	RefundPayment(ctx context.Context, providerPaymentID string, amount int64, reason string) (*Charge, error)
	VerifyWebhook(headers http.Header, rawBody []byte) (*domain.NormalizedEvent, error)
	GetStatus(ctx context.Context, providerPaymentID string) (domain.AttemptStatus, error)
}

// AttemptRepository is the append-only payment attempt log.
type AttemptRepository interface {
	Append(ctx context.Context, attempt *domain.PaymentAttempt) error
	ListByOrder(ctx context.Context, orderID string) ([]*domain.PaymentAttempt, error)
	// FindCharge resolves the charge attempt that introduced a provider
	// payment id, joining webhook deliveries back to their order.
	FindCharge(ctx context.Context, gateway, providerPaymentID string) (*domain.PaymentAttempt, error)
}

// EventStore records processed webhook deliveries. MarkProcessed returns
// false when the event id was seen before. Unmark reopens an event whose
// settlement failed so the provider's retry is not answered as a duplicate.
type EventStore interface {
	MarkProcessed(ctx context.Context, gateway, providerEventID string) (bool, error)
	Unmark(ctx context.Context, gateway, providerEventID string) error
}

// OrderSettler is the payments context's view of the order lifecycle.
type OrderSettler interface {
	MarkAsPaid(ctx context.Context, orderID, transactionID string, amount int64) error
	MarkPaymentFailed(ctx context.Context, orderID, reason string) error
	RecordRefund(ctx context.Context, orderID string, amount int64, reason string) error
	// RefundableAmount returns how much of the order's paid total is still
	// refundable.
	RefundableAmount(ctx context.Context, orderID string) (int64, error)
}
