package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ordershttpmapper "github.com/commercekit/orderflow/internal/domains/orders/adapters/http/mapper"
	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	returnstypes "github.com/commercekit/orderflow/internal/domains/returns/application/types"
	returnsports "github.com/commercekit/orderflow/internal/domains/returns/ports"
	apierrors "github.com/commercekit/orderflow/internal/shared/errors"
)

// ReturnsAPI wires HTTP transport with the return workflow and the bulk
// operations built on it.
type ReturnsAPI struct {
	service   returnsports.Service
	responder *apierrors.Responder
}

// NewReturnsAPI creates a ReturnsAPI backed by the provided service.
func NewReturnsAPI(service returnsports.Service) ReturnsAPI {
	return ReturnsAPI{service: service, responder: newResponder()}
}

type requestReturnPayload struct {
	Reason string `json:"reason" binding:"required"`
}

// RequestReturn handles POST /v1/orders/:id/return.
func (api *ReturnsAPI) RequestReturn(c *gin.Context) {
	var payload requestReturnPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.RequestReturn(c.Request.Context(), c.Param("id"), payload.Reason)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type resolveReturnPayload struct {
	Action  string `json:"action" binding:"required"`
	Note    string `json:"note"`
	Damaged bool   `json:"damaged"`
}

// ResolveReturn handles POST /v1/orders/:id/return/resolve.
func (api *ReturnsAPI) ResolveReturn(c *gin.Context) {
	var payload resolveReturnPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.ResolveReturnRequest(c.Request.Context(), returnstypes.ResolveInput{
		OrderID: c.Param("id"),
		Action:  orderstypes.ResolveReturnAction(payload.Action),
		Note:    payload.Note,
		Damaged: payload.Damaged,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type bulkRefundPayload struct {
	OrderIDs []string `json:"orderIds" binding:"required"`
	Amount   int64    `json:"amount"`
	Reason   string   `json:"reason"`
}

type bulkItemResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type bulkResponse struct {
	Results []bulkItemResponse `json:"results"`
	Failed  int                `json:"failed"`
}

func fromItemResults(results []returnstypes.ItemResult) bulkResponse {
	out := bulkResponse{Results: make([]bulkItemResponse, 0, len(results))}
	for _, result := range results {
		item := bulkItemResponse{ID: result.ID}
		if result.Err != nil {
			item.Error = result.Err.Error()
		}
		out.Results = append(out.Results, item)
	}
	out.Failed = returnstypes.Failed(results)
	return out
}

// BulkRefund handles POST /v1/bulk/orders/refund. Items fail independently;
// the response always reports per-item outcomes.
func (api *ReturnsAPI) BulkRefund(c *gin.Context) {
	var payload bulkRefundPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	results := api.service.BulkRefundOrders(c.Request.Context(), payload.OrderIDs, payload.Amount, payload.Reason)
	c.JSON(http.StatusOK, fromItemResults(results))
}

type bulkStatusPayload struct {
	OrderIDs []string `json:"orderIds" binding:"required"`
	Status   string   `json:"status" binding:"required"`
	Reason   string   `json:"reason"`
}

// BulkUpdateStatus handles POST /v1/bulk/orders/status.
func (api *ReturnsAPI) BulkUpdateStatus(c *gin.Context) {
	var payload bulkStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	results := api.service.BulkUpdateStatus(c.Request.Context(), payload.OrderIDs, ordersdomain.Status(payload.Status), payload.Reason)
	c.JSON(http.StatusOK, fromItemResults(results))
}
