package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
	apierrors "github.com/commercekit/orderflow/internal/shared/errors"
)

// PaymentsAPI wires HTTP transport with the payments service and the
// settlement orchestrator.
type PaymentsAPI struct {
	service     paymentsports.Service
	settlements paymentsports.SettlementOrchestrator
	responder   *apierrors.Responder
}

// NewPaymentsAPI creates a PaymentsAPI backed by the provided service.
func NewPaymentsAPI(service paymentsports.Service, settlements paymentsports.SettlementOrchestrator) PaymentsAPI {
	return PaymentsAPI{service: service, settlements: settlements, responder: newResponder()}
}

type attemptResponse struct {
	ID                string    `json:"id"`
	OrderID           string    `json:"orderId"`
	Gateway           string    `json:"gateway"`
	ProviderPaymentID string    `json:"providerPaymentId"`
	ProviderEventID   string    `json:"providerEventId,omitempty"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency,omitempty"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func fromAttempt(attempt *paymentsdomain.PaymentAttempt) attemptResponse {
	return attemptResponse{
		ID:                attempt.ID,
		OrderID:           attempt.OrderID,
		Gateway:           attempt.Gateway,
		ProviderPaymentID: attempt.ProviderPaymentID,
		ProviderEventID:   attempt.ProviderEventID,
		Amount:            attempt.Amount,
		Currency:          attempt.Currency,
		Type:              string(attempt.Type),
		Status:            string(attempt.Status),
		Reason:            attempt.Reason,
		CreatedAt:         attempt.CreatedAt,
	}
}

type createPaymentRequest struct {
	Gateway  string `json:"gateway" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// CreatePayment handles POST /v1/orders/:id/payments.
func (api *PaymentsAPI) CreatePayment(c *gin.Context) {
	var payload createPaymentRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	attempt, err := api.service.CreatePayment(c.Request.Context(), paymentstypes.CreatePaymentInput{
		Gateway:  payload.Gateway,
		OrderID:  c.Param("id"),
		Amount:   payload.Amount,
		Currency: payload.Currency,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fromAttempt(attempt))
}

type capturePaymentRequest struct {
	Gateway           string `json:"gateway" binding:"required"`
	ProviderPaymentID string `json:"providerPaymentId" binding:"required"`
	Amount            int64  `json:"amount" binding:"required"`
}

// CapturePayment handles POST /v1/orders/:id/payments/capture. Settlement
// runs through the orchestrator so captures survive process restarts when a
// workflow engine is available.
func (api *PaymentsAPI) CapturePayment(c *gin.Context) {
	var payload capturePaymentRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	attempt, err := api.settlements.SettlePayment(c.Request.Context(), paymentstypes.CaptureInput{
		Gateway:           payload.Gateway,
		OrderID:           c.Param("id"),
		ProviderPaymentID: payload.ProviderPaymentID,
		Amount:            payload.Amount,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromAttempt(attempt))
}

type refundPaymentRequest struct {
	Gateway           string `json:"gateway" binding:"required"`
	ProviderPaymentID string `json:"providerPaymentId" binding:"required"`
	Amount            int64  `json:"amount" binding:"required"`
	Reason            string `json:"reason"`
}

// RefundPayment handles POST /v1/orders/:id/payments/refund.
func (api *PaymentsAPI) RefundPayment(c *gin.Context) {
	var payload refundPaymentRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	attempt, err := api.service.RefundPayment(c.Request.Context(), paymentstypes.RefundInput{
		Gateway:           payload.Gateway,
		OrderID:           c.Param("id"),
		ProviderPaymentID: payload.ProviderPaymentID,
		Amount:            payload.Amount,
		Reason:            payload.Reason,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromAttempt(attempt))
}

// ListAttempts handles GET /v1/orders/:id/payments.
func (api *PaymentsAPI) ListAttempts(c *gin.Context) {
	attempts, err := api.service.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, fromAttempt(attempt))
	}
	c.JSON(http.StatusOK, out)
}

// HandleWebhook handles POST /v1/webhooks/:gateway. The raw body is read
// untouched; signature verification needs the exact bytes the provider
// signed. Duplicates acknowledge with 200 so providers stop retrying.
func (api *PaymentsAPI) HandleWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	result, err := api.service.HandleWebhook(c.Request.Context(), c.Param("gateway"), c.Request.Header, rawBody)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	status := "processed"
	if result.Duplicate {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"eventId": result.Event.ProviderEventID,
		"orderId": result.OrderID,
	})
}
