package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	apierrors "github.com/commercekit/orderflow/internal/shared/errors"
)

// StockAPI exposes stock administration endpoints.
type StockAPI struct {
	service   *invapp.Service
	responder *apierrors.Responder
}

// NewStockAPI creates a StockAPI backed by the stock coordinator.
func NewStockAPI(service *invapp.Service) StockAPI {
	return StockAPI{service: service, responder: newResponder()}
}

type stockItemPayload struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	Brand             string `json:"brand"`
	UnitPrice         int64  `json:"unitPrice"`
	Inventory         int64  `json:"inventory"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
	AllowBackorder    bool   `json:"allowBackorder"`
}

type stockItemResponse struct {
	ProductID string `json:"productId"`
	stockItemPayload
	Reserved  int64 `json:"reserved"`
	SoldCount int64 `json:"soldCount"`
	LowStock  bool  `json:"lowStock"`
}

func fromStockItem(item *invdomain.StockItem) stockItemResponse {
	return stockItemResponse{
		ProductID: item.ProductID,
		stockItemPayload: stockItemPayload{
			Name:              item.Name,
			Category:          item.Category,
			Brand:             item.Brand,
			UnitPrice:         item.UnitPrice,
			Inventory:         item.Inventory,
			LowStockThreshold: item.LowStockThreshold,
			AllowBackorder:    item.AllowBackorder,
		},
		Reserved:  item.Reserved,
		SoldCount: item.SoldCount,
		LowStock:  item.LowStock(),
	}
}

// List handles GET /v1/stock.
func (api *StockAPI) List(c *gin.Context) {
	items, err := api.service.List(c.Request.Context())
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	out := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, fromStockItem(item))
	}
	c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/stock/:productId.
func (api *StockAPI) Get(c *gin.Context) {
	item, err := api.service.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromStockItem(item))
}

// Upsert handles PUT /v1/stock/:productId.
func (api *StockAPI) Upsert(c *gin.Context) {
	var payload stockItemPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		api.responder.Respond(c, apierrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	item := &invdomain.StockItem{
		ProductID:         c.Param("productId"),
		Name:              payload.Name,
		Category:          payload.Category,
		Brand:             payload.Brand,
		UnitPrice:         payload.UnitPrice,
		Inventory:         payload.Inventory,
		LowStockThreshold: payload.LowStockThreshold,
		AllowBackorder:    payload.AllowBackorder,
	}
	if err := api.service.SetStock(c.Request.Context(), item); err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fromStockItem(item))
}
