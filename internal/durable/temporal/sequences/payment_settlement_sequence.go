package sequences

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentactivities "github.com/commercekit/orderflow/internal/platform/temporal/activities/payments"
)

// RunPaymentSettlementSequence executes the ordered activities that settle a
// captured payment onto its order.
func RunPaymentSettlementSequence(ctx workflow.Context, input paymentstypes.CaptureInput) (*paymentsdomain.PaymentAttempt, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("payment settlement sequence started", "orderId", input.OrderID)
	captureOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	}
	settleOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Second,
			MaximumAttempts:    3,
		},
	}

	var attempt paymentsdomain.PaymentAttempt
	err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, captureOptions), paymentactivities.CaptureChargeActivityName, input).Get(ctx, &attempt)
	if err != nil {
		logger.Error("payment settlement sequence capture failed", "orderId", input.OrderID, "error", err)
		return nil, err
	}
	logger.Info("payment settlement sequence captured", "orderId", input.OrderID, "status", string(attempt.Status))

	if attempt.Status == paymentsdomain.StatusCompleted {
		if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, settleOptions), paymentactivities.MarkOrderPaidActivityName, input).Get(ctx, nil); err != nil {
			logger.Error("payment settlement sequence mark-paid failed", "orderId", input.OrderID, "error", err)
			return &attempt, err
		}
		logger.Info("payment settlement sequence settled", "orderId", input.OrderID)
	}
	return &attempt, nil
}
