package ports

import (
	"context"
	"net/http"

	"github.com/commercekit/orderflow/internal/domains/payments/application/types"
	"github.com/commercekit/orderflow/internal/domains/payments/domain"
)

// Service is the payments application surface consumed by transport adapters.
type Service interface {
	CreatePayment(ctx context.Context, input types.CreatePaymentInput) (*domain.PaymentAttempt, error)
	CapturePayment(ctx context.Context, input types.CaptureInput) (*domain.PaymentAttempt, error)
	RefundPayment(ctx context.Context, input types.RefundInput) (*domain.PaymentAttempt, error)
	HandleWebhook(ctx context.Context, gateway string, headers http.Header, rawBody []byte) (*types.WebhookResult, error)
	GetStatus(ctx context.Context, gateway, providerPaymentID string) (domain.AttemptStatus, error)
	ListAttempts(ctx context.Context, orderID string) ([]*domain.PaymentAttempt, error)
}

// SettlementOrchestrator runs the capture-then-mark-paid sequence, either on
// a durable workflow engine or inline.
type SettlementOrchestrator interface {
	SettlePayment(ctx context.Context, input types.CaptureInput) (*domain.PaymentAttempt, error)
}
