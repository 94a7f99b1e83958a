package domain

import (
	"errors"
	"time"
)

var (
	ErrCouponInvalid       = errors.New("coupon is not valid")
	ErrCouponExpired       = errors.New("coupon has expired")
	ErrCouponNotApplicable = errors.New("coupon does not apply to this order")
	ErrInsufficientPoints  = errors.New("loyalty balance is too low")
	ErrPointsExceedTotal   = errors.New("redeemed points exceed the order total")
)

// Scope restricts where a coupon applies. An empty scope with Global unset
// applies nowhere; exclusions always win.
type Scope struct {
	Global           bool
	Products         []string
	Categories       []string
	Brands           []string
	ExcludedProducts []string
}

// ProductMeta is the catalog metadata needed for scope matching.
type ProductMeta struct {
	Category string
	Brand    string
}

// Covers reports whether a product falls inside the scope.
func (s Scope) Covers(productID string, meta ProductMeta) bool {
	for _, excluded := range s.ExcludedProducts {
		if excluded == productID {
			return false
		}
	}
	if s.Global {
		return true
	}
	for _, id := range s.Products {
		if id == productID {
			return true
		}
	}
	for _, category := range s.Categories {
		if category != "" && category == meta.Category {
			return true
		}
	}
	for _, brand := range s.Brands {
		if brand != "" && brand == meta.Brand {
			return true
		}
	}
	return false
}

// Coupon is a discount voucher with validity and applicability rules.
// Money fields are minor units.
type Coupon struct {
	Code        string
	Percent     int64 // percent off the eligible amount, 0 when fixed
	FixedAmount int64 // flat discount, 0 when percent-based
	MinPurchase int64
	ExpiresAt   time.Time
	UsageLimit  int64 // 0 means unlimited
	UsedCount   int64
	Scope       Scope
}

// Validate checks expiry and the usage cap at a point in time.
func (c *Coupon) Validate(now time.Time) error {
	if c.Code == "" || (c.Percent <= 0 && c.FixedAmount <= 0) {
		return ErrCouponInvalid
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return ErrCouponExpired
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ErrCouponInvalid
	}
	return nil
}

// DiscountOn computes the discount for the eligible amount of an order whose
// full subtotal meets the minimum purchase.
func (c *Coupon) DiscountOn(subtotal, eligible int64) (int64, error) {
	if subtotal < c.MinPurchase {
		return 0, ErrCouponNotApplicable
	}
	if eligible <= 0 {
		return 0, ErrCouponNotApplicable
	}
	if c.Percent > 0 {
		return eligible * c.Percent / 100, nil
	}
	if c.FixedAmount < eligible {
		return c.FixedAmount, nil
	}
	return eligible, nil
}
