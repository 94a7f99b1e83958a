// Package mapper converts between transport payloads and the orders domain.
package mapper

import (
	"time"

	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
)

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	UserID        string            `json:"userId" binding:"required"`
	Currency      string            `json:"currency" binding:"required"`
	Items         []CartItemRequest `json:"items" binding:"required"`
	Shipping      ShippingRequest   `json:"shipping"`
	ShippingPrice int64             `json:"shippingPrice"`
	CouponCode    string            `json:"couponCode"`
	RedeemPoints  int64             `json:"redeemPoints"`
	PriorityLevel int               `json:"priorityLevel"`
}

// CartItemRequest is one requested line before price snapshotting.
type CartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
}

// ShippingRequest is the destination supplied at checkout.
type ShippingRequest struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ToCreateInput converts the transport payload to the application command.
func ToCreateInput(req CreateOrderRequest) orderstypes.CreateOrderInput {
	items := make([]orderstypes.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderstypes.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return orderstypes.CreateOrderInput{
		UserID:   req.UserID,
		Currency: req.Currency,
		Items:    items,
		Shipping: orderstypes.ShippingInput{
			Name:       req.Shipping.Name,
			Line1:      req.Shipping.Line1,
			City:       req.Shipping.City,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		},
		ShippingPrice: req.ShippingPrice,
		CouponCode:    req.CouponCode,
		RedeemPoints:  req.RedeemPoints,
		PriorityLevel: req.PriorityLevel,
	}
}

// LineItemResponse is one snapshotted line.
type LineItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Discount  int64  `json:"discount"`
	Total     int64  `json:"total"`
}

// ReturnRequestResponse reports the return sub-process state.
type ReturnRequestResponse struct {
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// OrderResponse is the transport shape of an order.
type OrderResponse struct {
	ID             string                 `json:"id"`
	Number         string                 `json:"number"`
	UserID         string                 `json:"userId"`
	Items          []LineItemResponse     `json:"items"`
	Currency       string                 `json:"currency"`
	Subtotal       int64                  `json:"subtotal"`
	DiscountAmount int64                  `json:"discountAmount"`
	TaxAmount      int64                  `json:"taxAmount"`
	ShippingPrice  int64                  `json:"shippingPrice"`
	Total          int64                  `json:"total"`
	AmountPaid     int64                  `json:"amountPaid"`
	AmountDue      int64                  `json:"amountDue"`
	RefundedAmount int64                  `json:"refundedAmount"`
	Status         string                 `json:"status"`
	PaymentStatus  string                 `json:"paymentStatus"`
	CouponCode     string                 `json:"couponCode,omitempty"`
	PointsEarned   int64                  `json:"loyaltyPointsEarned"`
	PointsRedeemed int64                  `json:"loyaltyPointsRedeemed"`
	PriorityLevel  int                    `json:"priorityLevel"`
	Compliance     string                 `json:"complianceStatus"`
	Return         *ReturnRequestResponse `json:"returnRequest,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// FromOrder converts a domain order to its transport representation.
func FromOrder(order *ordersdomain.Order) OrderResponse {
	if order == nil {
		return OrderResponse{}
	}
	items := make([]LineItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Total:     item.Total(),
		})
	}
	resp := OrderResponse{
		ID:             order.ID,
		Number:         order.Number,
		UserID:         order.UserID,
		Items:          items,
		Currency:       order.Currency,
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		TaxAmount:      order.TaxAmount,
		ShippingPrice:  order.ShippingPrice,
		Total:          order.Total,
		AmountPaid:     order.AmountPaid,
		AmountDue:      order.AmountDue,
		RefundedAmount: order.RefundedAmount,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		CouponCode:     order.CouponCode,
		PointsEarned:   order.LoyaltyPointsEarned,
		PointsRedeemed: order.LoyaltyPointsRedeemed,
		PriorityLevel:  order.PriorityLevel,
		Compliance:     string(order.ComplianceStatus),
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	if order.ReturnRequest.Status != ordersdomain.ReturnNone {
		ret := ReturnRequestResponse{
			Status: string(order.ReturnRequest.Status),
			Reason: order.ReturnRequest.Reason,
			Note:   order.ReturnRequest.Note,
		}
		if !order.ReturnRequest.RequestedAt.IsZero() {
			requestedAt := order.ReturnRequest.RequestedAt
			ret.RequestedAt = &requestedAt
		}
		if !order.ReturnRequest.ResolvedAt.IsZero() {
			resolvedAt := order.ReturnRequest.ResolvedAt
			ret.ResolvedAt = &resolvedAt
		}
		resp.Return = &ret
	}
	return resp
}

// FromOrderList converts a slice of orders.
func FromOrderList(orders []*ordersdomain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromOrder(order))
	}
	return out
}
