// Package types carries the command and result payloads of the payments
// application layer.
package types

import "github.com/commercekit/orderflow/internal/domains/payments/domain"

// CreatePaymentInput starts a charge for an order on one gateway.
type CreatePaymentInput struct {
	Gateway  string
	OrderID  string
	Amount   int64
	Currency string
}

// CaptureInput finalizes an authorized charge.
type CaptureInput struct {
	Gateway           string
	OrderID           string
	ProviderPaymentID string
	Amount            int64
}

// RefundInput reverses part or all of a captured charge.
type RefundInput struct {
	Gateway           string
	OrderID           string
	ProviderPaymentID string
	Amount            int64
	Reason            string
}

// WebhookResult reports how one delivery was handled. Duplicate deliveries
// are acknowledged without side effects.
type WebhookResult struct {
	Event     *domain.NormalizedEvent
	OrderID   string
	Duplicate bool
}
