package domain

import "time"

// Event is the base interface for order domain events handed to the
// notification dispatcher.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent provides common event metadata.
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// OrderCreated is raised when checkout produces a new order.
type OrderCreated struct {
	BaseEvent
	OrderID string
	Number  string
	UserID  string
	Total   int64
}

func (e OrderCreated) EventName() string { return "orders.order.created" }

// OrderStatusChanged is raised on every fulfillment transition.
type OrderStatusChanged struct {
	BaseEvent
	OrderID    string
	FromStatus Status
	ToStatus   Status
	Reason     string
}

func (e OrderStatusChanged) EventName() string { return "orders.order.status_changed" }

// OrderPaid is raised when the full-payment threshold is crossed.
type OrderPaid struct {
	BaseEvent
	OrderID       string
	TransactionID string
	AmountPaid    int64
}

func (e OrderPaid) EventName() string { return "orders.order.paid" }

// OrderCancelled is raised when an order is cancelled and its stock released.
type OrderCancelled struct {
	BaseEvent
	OrderID string
	Reason  string
}

func (e OrderCancelled) EventName() string { return "orders.order.cancelled" }

// OrderSplit is raised when line items are carved into a new order.
type OrderSplit struct {
	BaseEvent
	OrderID    string
	NewOrderID string
}

func (e OrderSplit) EventName() string { return "orders.order.split" }
