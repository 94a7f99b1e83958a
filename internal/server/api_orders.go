package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ordershttpmapper "github.com/commercekit/orderflow/internal/domains/orders/adapters/http/mapper"
	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	apierrors "github.com/commercekit/orderflow/internal/shared/errors"
)

// OrdersAPI wires HTTP transport with the order lifecycle service.
type OrdersAPI struct {
	service   ordersports.Service
	responder *apierrors.Responder
}

// NewOrdersAPI creates an OrdersAPI backed by the provided service.
func NewOrdersAPI(service ordersports.Service) OrdersAPI {
	return OrdersAPI{service: service, responder: newResponder()}
}

// CreateOrder handles POST /v1/orders.
func (api *OrdersAPI) CreateOrder(c *gin.Context) {
	var payload ordershttpmapper.CreateOrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.CreateOrder(c.Request.Context(), ordershttpmapper.ToCreateInput(payload))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ordershttpmapper.FromOrder(order))
}

// GetOrder handles GET /v1/orders/:id.
func (api *OrdersAPI) GetOrder(c *gin.Context) {
	order, err := api.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

// GetOrderByNumber handles GET /v1/orders/number/:number.
func (api *OrdersAPI) GetOrderByNumber(c *gin.Context) {
	order, err := api.service.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

// ListOrders handles GET /v1/orders.
func (api *OrdersAPI) ListOrders(c *gin.Context) {
	filter := ordersports.ListFilter{
		UserID: c.Query("userId"),
		Status: ordersdomain.Status(c.Query("status")),
	}
	orders, err := api.service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrderList(orders))
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateStatus handles PATCH /v1/orders/:id/status.
func (api *OrdersAPI) UpdateStatus(c *gin.Context) {
	var payload updateStatusRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.UpdateStatus(c.Request.Context(), orderstypes.UpdateStatusInput{
		OrderID: c.Param("id"),
		Status:  ordersdomain.Status(payload.Status),
		Reason:  payload.Reason,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type applyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyCoupon handles POST /v1/orders/:id/coupon.
func (api *OrdersAPI) ApplyCoupon(c *gin.Context) {
	var payload applyCouponRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.ApplyCoupon(c.Request.Context(), c.Param("id"), payload.Code)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type redeemPointsRequest struct {
	Points int64 `json:"points" binding:"required"`
}

// RedeemPoints handles POST /v1/orders/:id/points.
func (api *OrdersAPI) RedeemPoints(c *gin.Context) {
	var payload redeemPointsRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.RedeemPoints(c.Request.Context(), c.Param("id"), payload.Points)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles POST /v1/orders/:id/cancel.
func (api *OrdersAPI) CancelOrder(c *gin.Context) {
	var payload cancelOrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil && err.Error() != "EOF" {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	order, err := api.service.CancelOrder(c.Request.Context(), orderstypes.CancelOrderInput{
		OrderID: c.Param("id"),
		Reason:  payload.Reason,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordershttpmapper.FromOrder(order))
}

type splitOrderRequest struct {
	ItemIndices []int `json:"itemIndices" binding:"required"`
}

type splitOrderResponse struct {
	Original ordershttpmapper.OrderResponse `json:"original"`
	Split    ordershttpmapper.OrderResponse `json:"split"`
}

// SplitOrder handles POST /v1/orders/:id/split.
func (api *OrdersAPI) SplitOrder(c *gin.Context) {
	var payload splitOrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	result, err := api.service.SplitOrder(c.Request.Context(), orderstypes.SplitOrderInput{
		OrderID:     c.Param("id"),
		ItemIndices: payload.ItemIndices,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, splitOrderResponse{
		Original: ordershttpmapper.FromOrder(result.Original),
		Split:    ordershttpmapper.FromOrder(result.Split),
	})
}
