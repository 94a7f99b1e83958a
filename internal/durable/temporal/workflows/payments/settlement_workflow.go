package payments

import (
	"go.temporal.io/sdk/workflow"

	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/durable/temporal/sequences"
)

const (
	// SettlementWorkflowName is the public identifier for registering the workflow.
	SettlementWorkflowName = "payments.workflows.Settlement"
	// SettlementTaskQueue is the queue consumed by the worker processing settlements.
	SettlementTaskQueue = "PAYMENT_SETTLEMENT"
)

// SettlementWorkflowInput captures the payload required to settle a payment.
type SettlementWorkflowInput struct {
	Command paymentstypes.CaptureInput
	TraceID string
}

// SettlementWorkflow orchestrates capture and order settlement for one charge.
func SettlementWorkflow(ctx workflow.Context, input SettlementWorkflowInput) (*paymentsdomain.PaymentAttempt, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SettlementWorkflow started", withTraceID(input.TraceID, "orderId", input.Command.OrderID)...)
	attempt, err := sequences.RunPaymentSettlementSequence(ctx, input.Command)
	if err != nil {
		logger.Error("SettlementWorkflow failed", withTraceID(input.TraceID, "orderId", input.Command.OrderID, "error", err)...)
		return nil, err
	}
	logger.Info("SettlementWorkflow completed", withTraceID(input.TraceID, "orderId", input.Command.OrderID, "status", string(attempt.Status))...)
	return attempt, nil
}

func withTraceID(traceID string, keyvals ...interface{}) []interface{} {
	if traceID == "" {
		return keyvals
	}
	return append(keyvals, "traceId", traceID)
}
