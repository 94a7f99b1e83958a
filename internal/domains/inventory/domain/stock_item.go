package domain

import "errors"

var (
	// ErrInsufficientStock signals a reservation that cannot be satisfied.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("stock quantity must be greater than zero")
)

// StockItem is the slice of the product aggregate this engine consumes:
// counts and flags, plus the price snapshot source for checkout.
type StockItem struct {
	ProductID         string
	Name              string
	Category          string
	Brand             string
	UnitPrice         int64 // minor units, snapshotted into orders at checkout
	Inventory         int64 // available for reservation
	Reserved          int64 // held by open orders, not yet committed
	SoldCount         int64
	LowStockThreshold int64
	AllowBackorder    bool
}

// LowStock reports whether available inventory dropped below the threshold.
func (s *StockItem) LowStock() bool {
	return s.LowStockThreshold > 0 && s.Inventory < s.LowStockThreshold
}

// Line identifies a quantity of one product in a stock operation.
type Line struct {
	ProductID string
	Quantity  int64
}

// Adjustment is the single atomic conditional-update primitive behind
// reserve, release, and commit. Deltas are applied only when every
// requirement holds, in one step, never read-modify-write.
type Adjustment struct {
	InventoryDelta int64
	ReservedDelta  int64
	SoldDelta      int64
	// RequireAvailable demands inventory >= this, waived when the item
	// allows backorders.
	RequireAvailable int64
	// RequireReserved demands reserved >= this.
	RequireReserved int64
}

// ReserveAdjustment holds qty against available inventory.
func ReserveAdjustment(qty int64) Adjustment {
	return Adjustment{InventoryDelta: -qty, ReservedDelta: qty, RequireAvailable: qty}
}

// ReleaseAdjustment compensates a reservation.
func ReleaseAdjustment(qty int64) Adjustment {
	return Adjustment{InventoryDelta: qty, ReservedDelta: -qty, RequireReserved: qty}
}

// CommitAdjustment converts a reservation into a permanent decrement.
func CommitAdjustment(qty int64) Adjustment {
	return Adjustment{ReservedDelta: -qty, SoldDelta: qty, RequireReserved: qty}
}

// RestockAdjustment credits returned units back into available inventory.
func RestockAdjustment(qty int64) Adjustment {
	return Adjustment{InventoryDelta: qty, SoldDelta: -qty}
}
