// Package server wires the gin transport layer over the application
// services: order lifecycle, payments and webhooks, stock administration,
// and the return/bulk operations.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Handlers bundles the per-context APIs mounted on the router.
type Handlers struct {
	Orders   OrdersAPI
	Payments PaymentsAPI
	Stock    StockAPI
	Returns  ReturnsAPI
}

// NewRouter assembles the engine with tracing middleware and all routes.
func NewRouter(serviceName string, handlers Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	orders := v1.Group("/orders")
	orders.POST("", handlers.Orders.CreateOrder)
	orders.GET("", handlers.Orders.ListOrders)
	orders.GET("/:id", handlers.Orders.GetOrder)
	orders.GET("/number/:number", handlers.Orders.GetOrderByNumber)
	orders.PATCH("/:id/status", handlers.Orders.UpdateStatus)
	orders.POST("/:id/coupon", handlers.Orders.ApplyCoupon)
	orders.POST("/:id/points", handlers.Orders.RedeemPoints)
	orders.POST("/:id/cancel", handlers.Orders.CancelOrder)
	orders.POST("/:id/split", handlers.Orders.SplitOrder)

	orders.POST("/:id/payments", handlers.Payments.CreatePayment)
	orders.POST("/:id/payments/capture", handlers.Payments.CapturePayment)
	orders.POST("/:id/payments/refund", handlers.Payments.RefundPayment)
	orders.GET("/:id/payments", handlers.Payments.ListAttempts)

	orders.POST("/:id/return", handlers.Returns.RequestReturn)
	orders.POST("/:id/return/resolve", handlers.Returns.ResolveReturn)

	bulk := v1.Group("/bulk/orders")
	bulk.POST("/refund", handlers.Returns.BulkRefund)
	bulk.POST("/status", handlers.Returns.BulkUpdateStatus)

	v1.POST("/webhooks/:gateway", handlers.Payments.HandleWebhook)

	stock := v1.Group("/stock")
	stock.GET("", handlers.Stock.List)
	stock.GET("/:productId", handlers.Stock.Get)
	stock.PUT("/:productId", handlers.Stock.Upsert)

	return router
}
