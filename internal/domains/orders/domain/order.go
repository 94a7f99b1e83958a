package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates fulfillment progression.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// PaymentStatus is the orthogonal payment axis. It moves independently of Status.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// ReturnStatus tracks the post-delivery return sub-process.
type ReturnStatus string

const (
	ReturnNone      ReturnStatus = "none"
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnProcessed ReturnStatus = "processed"
)

// ComplianceStatus flags orders whose invariants no longer hold.
type ComplianceStatus string

const (
	ComplianceClear   ComplianceStatus = "clear"
	ComplianceFlagged ComplianceStatus = "flagged"
)

var (
	ErrNoItems            = errors.New("order has no line items")
	ErrInvalidQuantity    = errors.New("line item quantity must be greater than zero")
	ErrInvalidPrice       = errors.New("line item unit price must not be negative")
	ErrInvalidCurrency    = errors.New("currency code is required")
	ErrInvalidAddress     = errors.New("shipping address is incomplete")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidStatus      = errors.New("order status is unknown")
	ErrRefundExceedsPaid  = errors.New("refund exceeds remaining paid amount")
	ErrTotalsMismatch     = errors.New("order totals do not reconcile")
	ErrAlreadyCancelled   = errors.New("order is already cancelled")
	ErrNotCancellable     = errors.New("order can no longer be cancelled")
	ErrEmptySplit         = errors.New("split selection must leave items on both orders")
	ErrReturnNotDelivered = errors.New("returns require a delivered order")
	ErrReturnAlreadyOpen  = errors.New("a return request is already open")
	ErrReturnNotRequested = errors.New("no return request awaiting resolution")
)

// allowedTransitions is the explicit edge table for fulfillment status.
// Transition into returned is reserved for the return workflow.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted, StatusReturned},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusReturned:   {},
}

// LineItem is an immutable price/quantity snapshot taken at checkout.
type LineItem struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64 // minor units
	Discount  int64 // per-item discount, minor units
}

// Total is the item contribution to the order subtotal after its own discount.
func (li LineItem) Total() int64 {
	return li.UnitPrice*li.Quantity - li.Discount
}

// ShippingAddress is the destination captured at checkout.
type ShippingAddress struct {
	Name       string
	Line1      string
	City       string
	PostalCode string
	Country    string
}

// Validate rejects structurally incomplete addresses.
func (a ShippingAddress) Validate() error {
	for _, field := range []string{a.Name, a.Line1, a.City, a.Country} {
		if strings.TrimSpace(field) == "" {
			return ErrInvalidAddress
		}
	}
	return nil
}

// Note is an append-only audit entry.
type Note struct {
	At   time.Time
	Text string
}

// ReturnRequest captures the state of an open or resolved return.
type ReturnRequest struct {
	Status      ReturnStatus
	Reason      string
	RequestedAt time.Time
	ResolvedAt  time.Time
	Note        string
}

// Order models the purchase aggregate from checkout through settlement.
// All money fields are minor units of Currency.
type Order struct {
	ID       string
	Number   string
	UserID   string
	Items    []LineItem
	Shipping ShippingAddress

	Subtotal       int64
	DiscountAmount int64
	TaxAmount      int64
	ShippingPrice  int64
	Total          int64
	AmountPaid     int64
	AmountDue      int64
	RefundedAmount int64
	Currency       string

	Status        Status
	PaymentStatus PaymentStatus

	PriorityLevel         int
	LoyaltyPointsEarned   int64
	LoyaltyPointsRedeemed int64
	CouponCode            string

	ReturnRequest    ReturnRequest
	ComplianceStatus ComplianceStatus
	FraudScore       float64
	Notes            []Note

	// At-most-once guards for the paid-threshold side effects.
	StockCommitted bool
	PointsAwarded  bool

	// Transactions already applied by MarkAsPaid, for idempotent replays.
	AppliedTransactions []string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder validates and constructs a pending, unpaid order. Totals beyond the
// item subtotal (discounts, tax, shipping) are set by the caller followed by
// Recalculate.
func NewOrder(id, number, userID, currency string, items []LineItem, shipping ShippingAddress) (*Order, error) {
	order := &Order{
		ID:               id,
		Number:           number,
		UserID:           userID,
		Currency:         strings.ToUpper(strings.TrimSpace(currency)),
		Items:            items,
		Shipping:         shipping,
		Status:           StatusPending,
		PaymentStatus:    PaymentUnpaid,
		ReturnRequest:    ReturnRequest{Status: ReturnNone},
		ComplianceStatus: ComplianceClear,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	order.Recalculate()
	return order, nil
}

// Validate enforces structural invariants on the aggregate.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return ErrInvalidPrice
		}
	}
	if strings.TrimSpace(o.Currency) == "" {
		return ErrInvalidCurrency
	}
	if err := o.Shipping.Validate(); err != nil {
		return err
	}
	if _, ok := allowedTransitions[o.Status]; !ok {
		return ErrInvalidStatus
	}
	return nil
}

// Recalculate recomputes the derived money fields from the line items.
func (o *Order) Recalculate() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.Total()
	}
	o.Subtotal = subtotal
	o.Total = o.Subtotal - o.DiscountAmount + o.TaxAmount + o.ShippingPrice
	o.AmountDue = o.Total - o.AmountPaid
}

// CanTransition reports whether the edge current->next exists in the table.
func (o *Order) CanTransition(next Status) bool {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the order along an allowed edge and appends an audit note.
func (o *Order) Transition(next Status, reason string) error {
	if _, ok := allowedTransitions[next]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if !o.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	from := o.Status
	o.Status = next
	o.appendNote(fmt.Sprintf("status %s -> %s: %s", from, next, reason))
	return nil
}

// ApplyPayment records a captured amount. It is idempotent on transactionID:
// a replayed transaction reports applied=false and leaves the order untouched.
func (o *Order) ApplyPayment(transactionID string, amount int64) (applied bool) {
	for _, existing := range o.AppliedTransactions {
		if existing == transactionID {
			return false
		}
	}
	o.AppliedTransactions = append(o.AppliedTransactions, transactionID)
	o.AmountPaid += amount
	o.AmountDue = o.Total - o.AmountPaid
	switch {
	case o.AmountPaid >= o.Total:
		o.PaymentStatus = PaymentPaid
	case o.AmountPaid > 0:
		o.PaymentStatus = PaymentPartial
	}
	o.appendNote(fmt.Sprintf("payment %s captured for %d", transactionID, amount))
	return true
}

// RemainingPaid is the captured amount not yet handed back through refunds.
func (o *Order) RemainingPaid() int64 {
	return o.AmountPaid - o.RefundedAmount
}

// ApplyRefund records a partial or full refund against the captured amount.
func (o *Order) ApplyRefund(amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: refund amount must be positive", ErrInvalidPrice)
	}
	if amount > o.RemainingPaid() {
		return fmt.Errorf("%w: %d > %d", ErrRefundExceedsPaid, amount, o.RemainingPaid())
	}
	o.RefundedAmount += amount
	o.PaymentStatus = PaymentRefunded
	o.appendNote(fmt.Sprintf("refund of %d: %s", amount, reason))
	return nil
}

// IsPaidInFull reports whether the full-payment threshold has been crossed.
func (o *Order) IsPaidInFull() bool {
	return o.AmountPaid >= o.Total
}

// Cancellable reports whether the fulfillment state still permits cancellation.
func (o *Order) Cancellable() error {
	switch o.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusDelivered, StatusCompleted, StatusReturned:
		return fmt.Errorf("%w: status is %s", ErrNotCancellable, o.Status)
	default:
		return nil
	}
}

// RequestReturn opens a return request. Only delivered orders with no open
// request qualify.
func (o *Order) RequestReturn(reason string, at time.Time) error {
	if o.Status != StatusDelivered {
		return fmt.Errorf("%w: status is %s", ErrReturnNotDelivered, o.Status)
	}
	if o.ReturnRequest.Status == ReturnRequested || o.ReturnRequest.Status == ReturnApproved {
		return ErrReturnAlreadyOpen
	}
	o.ReturnRequest = ReturnRequest{Status: ReturnRequested, Reason: reason, RequestedAt: at}
	o.appendNote("return requested: " + reason)
	return nil
}

// CheckInvariants verifies the money identities; a violation is fatal to
// automatic processing and must flag the order for manual review.
func (o *Order) CheckInvariants() error {
	if o.AmountPaid+o.AmountDue != o.Total {
		return fmt.Errorf("%w: paid %d + due %d != total %d", ErrTotalsMismatch, o.AmountPaid, o.AmountDue, o.Total)
	}
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.Total()
	}
	if subtotal-o.DiscountAmount+o.TaxAmount+o.ShippingPrice != o.Total {
		return fmt.Errorf("%w: items %d - discount %d + tax %d + shipping %d != total %d",
			ErrTotalsMismatch, subtotal, o.DiscountAmount, o.TaxAmount, o.ShippingPrice, o.Total)
	}
	return nil
}

// Flag marks the order for manual review.
func (o *Order) Flag(reason string) {
	o.ComplianceStatus = ComplianceFlagged
	o.appendNote("flagged for review: " + reason)
}

// ItemTotal sums the line item totals, exclusive of order-level adjustments.
func (o *Order) ItemTotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.Total()
	}
	return sum
}

// AddNote appends a free-form audit note.
func (o *Order) AddNote(text string) {
	o.appendNote(text)
}

func (o *Order) appendNote(text string) {
	o.Notes = append(o.Notes, Note{At: time.Now().UTC(), Text: text})
}
