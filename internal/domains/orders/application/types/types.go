// Package types holds the command and query shapes of the orders context.
package types

import "github.com/commercekit/orderflow/internal/domains/orders/domain"

// CartItem is a checkout request line before price snapshotting.
type CartItem struct {
	ProductID string
	Quantity  int64
}

// ShippingInput carries the destination supplied at checkout.
type ShippingInput struct {
	Name       string
	Line1      string
	City       string
	PostalCode string
	Country    string
}

// CreateOrderInput is the checkout command.
type CreateOrderInput struct {
	UserID        string
	Currency      string
	Items         []CartItem
	Shipping      ShippingInput
	ShippingPrice int64
	CouponCode    string
	RedeemPoints  int64
	PriorityLevel int
}

// UpdateStatusInput moves an order along the fulfillment graph.
type UpdateStatusInput struct {
	OrderID string
	Status  domain.Status
	Reason  string
}

// MarkAsPaidInput records a captured payment, idempotent on TransactionID.
type MarkAsPaidInput struct {
	OrderID       string
	TransactionID string
	Amount        int64
}

// SplitOrderInput carves the selected item indices into a new order.
type SplitOrderInput struct {
	OrderID     string
	ItemIndices []int
}

// SplitOrderResult returns both halves after a split.
type SplitOrderResult struct {
	Original *domain.Order
	Split    *domain.Order
}

// CancelOrderInput cancels an order and releases its reservation.
type CancelOrderInput struct {
	OrderID string
	Reason  string
}

// ResolveReturnAction is the admin decision on an open return request.
type ResolveReturnAction string

const (
	ReturnActionApprove ResolveReturnAction = "approved"
	ReturnActionReject  ResolveReturnAction = "rejected"
	ReturnActionProcess ResolveReturnAction = "processed"
)
