// Package domain holds the payment settlement model: attempts, normalized
// provider events, and per-provider transaction limits.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCurrencyNotSupported = errors.New("currency not supported by provider")
	ErrAmountOutOfRange     = errors.New("amount outside provider limits")
	ErrBadSignature         = errors.New("webhook signature verification failed")
	ErrUnknownGateway       = errors.New("unknown payment gateway")
	ErrProvider             = errors.New("payment provider failure")
	ErrMalformedEvent       = errors.New("malformed webhook payload")
)

// AttemptType distinguishes money moving in from money moving out.
type AttemptType string

const (
	TypeCharge AttemptType = "charge"
	TypeRefund AttemptType = "refund"
)

// AttemptStatus is the canonical status vocabulary. Every provider's native
// vocabulary is mapped onto this set before anything downstream sees it.
type AttemptStatus string

const (
	StatusPending    AttemptStatus = "pending"
	StatusProcessing AttemptStatus = "processing"
	StatusCompleted  AttemptStatus = "completed"
	StatusCancelled  AttemptStatus = "cancelled"
	StatusRefunded   AttemptStatus = "refunded"
	StatusFailed     AttemptStatus = "failed"
)

// Terminal reports whether the status can no longer change at the provider.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// PaymentAttempt is one append-only log entry. Attempts are never mutated
// once written; a later provider event produces a new row.
type PaymentAttempt struct {
	ID                string
	OrderID           string
	Gateway           string
	ProviderPaymentID string
	ProviderEventID   string
	Amount            int64
	Currency          string
	Type              AttemptType
	Status            AttemptStatus
	Reason            string
	RawResponse       string
	CreatedAt         time.Time
}

// NormalizedEvent is the provider-agnostic view of a webhook delivery.
type NormalizedEvent struct {
	Type              string
	ProviderEventID   string
	ProviderPaymentID string
	Status            AttemptStatus
	Amount            int64
}

// Validate checks the fields settlement depends on.
func (e *NormalizedEvent) Validate() error {
	if e == nil {
		return ErrMalformedEvent
	}
	if strings.TrimSpace(e.ProviderEventID) == "" {
		return fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if strings.TrimSpace(e.ProviderPaymentID) == "" {
		return fmt.Errorf("%w: missing payment id", ErrMalformedEvent)
	}
	if e.Status == "" {
		return fmt.Errorf("%w: missing status", ErrMalformedEvent)
	}
	return nil
}

// Limits captures a provider's configured transaction bounds. Checked before
// any network call so an impossible request never leaves the process.
type Limits struct {
	MinAmount  int64
	MaxAmount  int64
	Currencies []string
}

// Check validates an amount/currency pair against the limits.
func (l Limits) Check(amount int64, currency string) error {
	if len(l.Currencies) > 0 {
		supported := false
		for _, c := range l.Currencies {
			if strings.EqualFold(c, currency) {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("%w: %q", ErrCurrencyNotSupported, currency)
		}
	}
	if l.MinAmount > 0 && amount < l.MinAmount {
		return fmt.Errorf("%w: %d below minimum %d", ErrAmountOutOfRange, amount, l.MinAmount)
	}
	if l.MaxAmount > 0 && amount > l.MaxAmount {
		return fmt.Errorf("%w: %d above maximum %d", ErrAmountOutOfRange, amount, l.MaxAmount)
	}
	return nil
}
