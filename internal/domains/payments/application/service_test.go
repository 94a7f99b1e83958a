package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	paymentsmemory "github.com/commercekit/orderflow/internal/domains/payments/adapters/memory"
	"github.com/commercekit/orderflow/internal/domains/payments/application/types"
	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

// fakeGateway scripts provider responses without touching the network.
type fakeGateway struct {
	name   string
	limits domain.Limits
	charge *ports.Charge
	event  *domain.NormalizedEvent
	err    error
	// failures makes the first N calls fail with err before succeeding.
	failures int
	calls    int
}

func (g *fakeGateway) Name() string          { return g.name }
func (g *fakeGateway) Limits() domain.Limits { return g.limits }

func (g *fakeGateway) respond() (*ports.Charge, error) {
	g.calls++
	if g.failures > 0 {
		g.failures--
		return nil, g.err
	}
	if g.err != nil && g.failures == 0 && g.charge == nil {
		return nil, g.err
	}
	return g.charge, nil
}

func (g *fakeGateway) CreatePayment(context.Context, ports.ChargeRequest) (*ports.Charge, error) {
	return g.respond()
}

func (g *fakeGateway) CapturePayment(context.Context, string) (*ports.Charge, error) {
	return g.respond()
}

func (g *fakeGateway) RefundPayment(context.Context, string, int64, string) (*ports.Charge, error) {
	return g.respond()
}

func (g *fakeGateway) VerifyWebhook(http.Header, []byte) (*domain.NormalizedEvent, error) {
	if g.event == nil {
		return nil, domain.ErrBadSignature
	}
	return g.event, nil
}

func (g *fakeGateway) GetStatus(context.Context, string) (domain.AttemptStatus, error) {
	if g.charge == nil {
		return "", ports.ErrNotFound
	}
	return g.charge.Status, nil
}

// recordingSettler captures settlement calls against the orders context.
type recordingSettler struct {
	paid       []string
	failed     []string
	refunds    []int64
	refundable int64
	refundErr  error
	// paidFailures makes the first N MarkAsPaid calls fail.
	paidFailures int
}

func (s *recordingSettler) MarkAsPaid(_ context.Context, orderID, transactionID string, _ int64) error {
	if s.paidFailures > 0 {
		s.paidFailures--
		return errors.New("order store unavailable")
	}
	s.paid = append(s.paid, orderID+":"+transactionID)
	return nil
}

func (s *recordingSettler) MarkPaymentFailed(_ context.Context, orderID, _ string) error {
	s.failed = append(s.failed, orderID)
	return nil
}

func (s *recordingSettler) RecordRefund(_ context.Context, _ string, amount int64, _ string) error {
	if s.refundErr != nil {
		return s.refundErr
	}
	s.refunds = append(s.refunds, amount)
	return nil
}

func (s *recordingSettler) RefundableAmount(context.Context, string) (int64, error) {
	return s.refundable, nil
}

func newPaymentsFixture(t *testing.T, gw ports.Gateway) (*Service, *recordingSettler) {
	t.Helper()
	settler := &recordingSettler{}
	svc := NewService(
		paymentsmemory.NewAttemptRepository(),
		paymentsmemory.NewEventStore(),
		settler,
		WithProviderRetry(3, time.Millisecond),
	)
	svc.RegisterGateway(gw)
	return svc, settler
}

func usdLimits() domain.Limits {
	return domain.Limits{MinAmount: 50, MaxAmount: 1_000_000, Currencies: []string{"USD", "EUR"}}
}

func TestCreatePayment_Success(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusPending},
	}
	svc, _ := newPaymentsFixture(t, gw)

	attempt, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway:  "stripe",
		OrderID:  "order-1",
		Amount:   5000,
		Currency: "USD",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_1", attempt.ProviderPaymentID)
	require.Equal(t, domain.TypeCharge, attempt.Type)
	require.Equal(t, domain.StatusPending, attempt.Status)

	attempts, err := svc.ListAttempts(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestCreatePayment_UnknownGateway(t *testing.T) {
	svc, _ := newPaymentsFixture(t, &fakeGateway{name: "stripe", limits: usdLimits()})
	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "square", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.ErrorIs(t, err, domain.ErrUnknownGateway)
}

func TestCreatePayment_LimitsCheckedBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{name: "stripe", limits: usdLimits()}
	svc, _ := newPaymentsFixture(t, gw)

	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "JPY",
	})
	require.ErrorIs(t, err, domain.ErrCurrencyNotSupported)

	_, err = svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 10, Currency: "USD",
	})
	require.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	_, err = svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 2_000_000, Currency: "USD",
	})
	require.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	require.Equal(t, 0, gw.calls)
}

func TestCreatePayment_RetriesTransientFailures(t *testing.T) {
	gw := &fakeGateway{
		name:     "stripe",
		limits:   usdLimits(),
		charge:   &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusPending},
		err:      fmt.Errorf("%w: 503", domain.ErrProvider),
		failures: 2,
	}
	svc, settler := newPaymentsFixture(t, gw)

	attempt, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.NoError(t, err)
	require.Equal(t, 3, gw.calls)
	require.Equal(t, "pi_1", attempt.ProviderPaymentID)
	require.Empty(t, settler.failed)
}

func TestCreatePayment_ExhaustionMarksPaymentFailed(t *testing.T) {
	gw := &fakeGateway{
		name:     "stripe",
		limits:   usdLimits(),
		err:      fmt.Errorf("%w: 503", domain.ErrProvider),
		failures: 3,
	}
	svc, settler := newPaymentsFixture(t, gw)

	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.ErrorIs(t, err, domain.ErrProvider)
	require.Equal(t, 3, gw.calls)
	require.Equal(t, []string{"order-1"}, settler.failed)
}

func TestCreatePayment_NonTransientFailureNotRetried(t *testing.T) {
	gw := &fakeGateway{
		name:     "stripe",
		limits:   usdLimits(),
		err:      errors.New("card declined"),
		failures: 3,
	}
	svc, _ := newPaymentsFixture(t, gw)

	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.Error(t, err)
	require.Equal(t, 1, gw.calls)
}

func TestCapturePayment_CompletedMarksOrderPaid(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusCompleted},
	}
	svc, settler := newPaymentsFixture(t, gw)

	attempt, err := svc.CapturePayment(context.Background(), types.CaptureInput{
		Gateway: "stripe", OrderID: "order-1", ProviderPaymentID: "pi_1", Amount: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, attempt.Status)
	require.Equal(t, []string{"order-1:pi_1"}, settler.paid)
}

func TestRefundPayment_CapCheckedBeforeProviderCall(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusRefunded},
	}
	svc, settler := newPaymentsFixture(t, gw)
	settler.refundable = 2000

	_, err := svc.RefundPayment(context.Background(), types.RefundInput{
		Gateway: "stripe", OrderID: "order-1", ProviderPaymentID: "pi_1", Amount: 3000,
	})
	require.ErrorIs(t, err, ErrRefundExceedsPaid)
	require.Equal(t, 0, gw.calls)

	attempt, err := svc.RefundPayment(context.Background(), types.RefundInput{
		Gateway: "stripe", OrderID: "order-1", ProviderPaymentID: "pi_1", Amount: 1500, Reason: "damaged",
	})
	require.NoError(t, err)
	require.Equal(t, domain.TypeRefund, attempt.Type)
	require.Equal(t, []int64{1500}, settler.refunds)
}

func TestRefundPayment_LedgerFailureSurfacesAfterProviderRefund(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusRefunded},
	}
	svc, settler := newPaymentsFixture(t, gw)
	settler.refundable = 5000
	settler.refundErr = errors.New("version conflict")

	attempt, err := svc.RefundPayment(context.Background(), types.RefundInput{
		Gateway: "stripe", OrderID: "order-1", ProviderPaymentID: "pi_1", Amount: 1000,
	})
	require.Error(t, err)
	// The provider-side refund attempt is still recorded for reconciliation.
	require.NotNil(t, attempt)
	require.Equal(t, domain.TypeRefund, attempt.Type)
}

func TestHandleWebhook_SettlesExactlyOnceAcrossDuplicates(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusPending},
		event: &domain.NormalizedEvent{
			Type:              "payment_intent.succeeded",
			ProviderEventID:   "evt_1",
			ProviderPaymentID: "pi_1",
			Status:            domain.StatusCompleted,
			Amount:            5000,
		},
	}
	svc, settler := newPaymentsFixture(t, gw)

	// The charge attempt joins the webhook back to its order.
	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.NoError(t, err)

	first, err := svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	require.Equal(t, "order-1", first.OrderID)
	require.Equal(t, []string{"order-1:pi_1"}, settler.paid)

	second, err := svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, []string{"order-1:pi_1"}, settler.paid)

	attempts, err := svc.ListAttempts(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2) // charge + one webhook attempt, no duplicate
}

func TestHandleWebhook_FailedSettlementReopensEvent(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pi_1", Status: domain.StatusPending},
		event: &domain.NormalizedEvent{
			Type:              "payment_intent.succeeded",
			ProviderEventID:   "evt_1",
			ProviderPaymentID: "pi_1",
			Status:            domain.StatusCompleted,
			Amount:            5000,
		},
	}
	svc, settler := newPaymentsFixture(t, gw)
	settler.paidFailures = 1

	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "stripe", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.NoError(t, err)

	_, err = svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.Error(t, err)
	require.Empty(t, settler.paid)

	// The provider retries the delivery; it must settle now, not be
	// acknowledged as a duplicate.
	retry, err := svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.False(t, retry.Duplicate)
	require.Equal(t, []string{"order-1:pi_1"}, settler.paid)
}

func TestHandleWebhook_UnknownPaymentAcknowledgedWithoutSettling(t *testing.T) {
	gw := &fakeGateway{
		name:   "stripe",
		limits: usdLimits(),
		event: &domain.NormalizedEvent{
			Type:              "payment_intent.succeeded",
			ProviderEventID:   "evt_9",
			ProviderPaymentID: "pi_unknown",
			Status:            domain.StatusCompleted,
		},
	}
	svc, settler := newPaymentsFixture(t, gw)

	result, err := svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, result.OrderID)
	require.Empty(t, settler.paid)
}

func TestHandleWebhook_RefundEventRecordsRefund(t *testing.T) {
	gw := &fakeGateway{
		name:   "razorpay",
		limits: usdLimits(),
		charge: &ports.Charge{ProviderPaymentID: "pay_1", Status: domain.StatusCompleted},
		event: &domain.NormalizedEvent{
			Type:              "refund.processed",
			ProviderEventID:   "evt_r1",
			ProviderPaymentID: "pay_1",
			Status:            domain.StatusRefunded,
			Amount:            2500,
		},
	}
	svc, settler := newPaymentsFixture(t, gw)

	_, err := svc.CreatePayment(context.Background(), types.CreatePaymentInput{
		Gateway: "razorpay", OrderID: "order-1", Amount: 5000, Currency: "USD",
	})
	require.NoError(t, err)

	result, err := svc.HandleWebhook(context.Background(), "razorpay", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "order-1", result.OrderID)
	require.Equal(t, []int64{2500}, settler.refunds)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	gw := &fakeGateway{name: "stripe", limits: usdLimits()}
	svc, _ := newPaymentsFixture(t, gw)

	_, err := svc.HandleWebhook(context.Background(), "stripe", http.Header{}, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestLimits_Check(t *testing.T) {
	limits := usdLimits()
	require.NoError(t, limits.Check(5000, "usd"))
	require.ErrorIs(t, limits.Check(5000, "JPY"), domain.ErrCurrencyNotSupported)
	require.ErrorIs(t, limits.Check(10, "USD"), domain.ErrAmountOutOfRange)
	require.ErrorIs(t, limits.Check(2_000_000, "USD"), domain.ErrAmountOutOfRange)
}
