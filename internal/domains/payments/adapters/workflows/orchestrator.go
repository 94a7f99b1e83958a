package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
	settlementworkflows "github.com/commercekit/orderflow/internal/durable/temporal/workflows/payments"
)

var (
	_ ports.SettlementOrchestrator = (*TemporalSettlements)(nil)
	_ ports.SettlementOrchestrator = (*InlineSettlements)(nil)
)

// TemporalSettlements starts settlement workflows on a Temporal cluster.
type TemporalSettlements struct {
	client    client.Client
	taskQueue string
}

// NewTemporalSettlements wires a Temporal client into the orchestrator.
func NewTemporalSettlements(c client.Client) *TemporalSettlements {
	return &TemporalSettlements{client: c, taskQueue: settlementworkflows.SettlementTaskQueue}
}

// SettlePayment starts the settlement workflow for one charge. The workflow
// id is derived from the order and provider payment ids so concurrent
// submissions collapse onto one run.
func (o *TemporalSettlements) SettlePayment(ctx context.Context, input paymentstypes.CaptureInput) (*domain.PaymentAttempt, error) {
	if o == nil || o.client == nil {
		return nil, errors.New("temporal settlements not configured")
	}
	workflowID := fmt.Sprintf("payment-settlement-%s-%s", input.OrderID, input.ProviderPaymentID)
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: o.taskQueue,
	}
	run, err := o.client.ExecuteWorkflow(
		ctx,
		options,
		settlementworkflows.SettlementWorkflow,
		settlementworkflows.SettlementWorkflowInput{Command: input, TraceID: workflowTraceComponent(ctx)},
	)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			existingRun := o.client.GetWorkflow(ctx, workflowID, alreadyStarted.RunId)
			var attempt domain.PaymentAttempt
			if err := existingRun.Get(ctx, &attempt); err != nil {
				return nil, err
			}
			return &attempt, nil
		}
		return nil, err
	}
	var attempt domain.PaymentAttempt
	if err := run.Get(ctx, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// InlineSettlements executes the payments service directly without Temporal,
// useful for tests or dev fallbacks.
type InlineSettlements struct {
	service ports.Service
}

// NewInlineSettlements wraps the payments service for synchronous execution.
func NewInlineSettlements(service ports.Service) *InlineSettlements {
	return &InlineSettlements{service: service}
}

// SettlePayment delegates to the application service without durable
// orchestration.
func (o *InlineSettlements) SettlePayment(ctx context.Context, input paymentstypes.CaptureInput) (*domain.PaymentAttempt, error) {
	if o == nil || o.service == nil {
		return nil, errors.New("inline settlements not configured")
	}
	return o.service.CapturePayment(ctx, input)
}

func workflowTraceComponent(ctx context.Context) string {
	if traceID := workflowTraceID(ctx); traceID != "" {
		return traceID
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}

func workflowTraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	traceID := spanCtx.TraceID()
	if !traceID.IsValid() {
		return ""
	}
	return traceID.String()
}
