package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	pricingmemory "github.com/commercekit/orderflow/internal/domains/pricing/adapters/memory"
	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
)

// stubCatalog serves fixed product metadata for scope matching.
type stubCatalog map[string]domain.ProductMeta

func (c stubCatalog) Meta(_ context.Context, productID string) (domain.ProductMeta, error) {
	return c[productID], nil
}

type ledgerFixture struct {
	svc     *Service
	coupons *pricingmemory.CouponRepository
	tiers   *pricingmemory.TierRepository
	loyalty *pricingmemory.LoyaltyStore
}

func newLedger(t *testing.T, catalog stubCatalog, opts ...Option) *ledgerFixture {
	t.Helper()
	coupons := pricingmemory.NewCouponRepository()
	tiers := pricingmemory.NewTierRepository()
	loyalty := pricingmemory.NewLoyaltyStore()
	return &ledgerFixture{
		svc:     NewService(coupons, tiers, loyalty, catalog, opts...),
		coupons: coupons,
		tiers:   tiers,
		loyalty: loyalty,
	}
}

func ledgerOrder(t *testing.T, items []ordersdomain.LineItem) *ordersdomain.Order {
	t.Helper()
	order, err := ordersdomain.NewOrder("order-1", "ORD-1", "user-1", "USD", items,
		ordersdomain.ShippingAddress{Name: "Ada", Line1: "1 Main St", City: "Springfield", Country: "US"})
	require.NoError(t, err)
	return order
}

func TestApplyCoupon_PercentOffEligibleAmount(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:    "SAVE10",
		Percent: 10,
		Scope:   domain.Scope{Global: true},
	}))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 2, UnitPrice: 1500}})

	require.NoError(t, f.svc.ApplyCoupon(context.Background(), order, "SAVE10"))
	require.Equal(t, int64(300), order.DiscountAmount)
	require.Equal(t, int64(2700), order.Total)
	require.Equal(t, "SAVE10", order.CouponCode)
}

func TestApplyCoupon_FixedAmountCappedAtEligible(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:        "FLAT5000",
		FixedAmount: 5000,
		Scope:       domain.Scope{Global: true},
	}))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 2000}})

	require.NoError(t, f.svc.ApplyCoupon(context.Background(), order, "FLAT5000"))
	require.Equal(t, int64(2000), order.DiscountAmount)
	require.Equal(t, int64(0), order.Total)
}

func TestApplyCoupon_CategoryScope(t *testing.T) {
	catalog := stubCatalog{
		"sku-book": {Category: "books"},
		"sku-toy":  {Category: "toys"},
	}
	f := newLedger(t, catalog)
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:    "BOOKS20",
		Percent: 20,
		Scope:   domain.Scope{Categories: []string{"books"}},
	}))
	order := ledgerOrder(t, []ordersdomain.LineItem{
		{ProductID: "sku-book", Quantity: 1, UnitPrice: 1000},
		{ProductID: "sku-toy", Quantity: 1, UnitPrice: 4000},
	})

	require.NoError(t, f.svc.ApplyCoupon(context.Background(), order, "BOOKS20"))
	// Only the book line is eligible.
	require.Equal(t, int64(200), order.DiscountAmount)
}

func TestApplyCoupon_ExclusionWins(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:    "ALL",
		Percent: 10,
		Scope:   domain.Scope{Global: true, ExcludedProducts: []string{"sku-1"}},
	}))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})

	err := f.svc.ApplyCoupon(context.Background(), order, "ALL")
	require.ErrorIs(t, err, domain.ErrCouponNotApplicable)
	require.Equal(t, int64(0), order.DiscountAmount)
}

func TestApplyCoupon_UnknownCode(t *testing.T) {
	f := newLedger(t, nil)
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})
	err := f.svc.ApplyCoupon(context.Background(), order, "NOPE")
	require.ErrorIs(t, err, domain.ErrCouponInvalid)
}

func TestApplyCoupon_UsageLimitExhausted(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:       "ONCE",
		Percent:    10,
		UsageLimit: 1,
		Scope:      domain.Scope{Global: true},
	}))

	first := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})
	require.NoError(t, f.svc.ApplyCoupon(context.Background(), first, "ONCE"))

	second := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})
	err := f.svc.ApplyCoupon(context.Background(), second, "ONCE")
	require.ErrorIs(t, err, domain.ErrCouponInvalid)
}

func TestApplyCoupon_Expired(t *testing.T) {
	f := newLedger(t, nil, WithClock(func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }))
	require.NoError(t, f.coupons.Save(context.Background(), &domain.Coupon{
		Code:      "SPRING",
		Percent:   10,
		ExpiresAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Scope:     domain.Scope{Global: true},
	}))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})

	err := f.svc.ApplyCoupon(context.Background(), order, "SPRING")
	require.ErrorIs(t, err, domain.ErrCouponExpired)
}

func TestRedeemPoints_DebitsBalance(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 500))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})

	require.NoError(t, f.svc.RedeemPoints(context.Background(), order, 300))
	require.Equal(t, int64(300), order.LoyaltyPointsRedeemed)
	require.Equal(t, int64(700), order.Total)

	balance, err := f.svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(200), balance)
}

func TestRedeemPoints_InsufficientBalance(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 100))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})

	err := f.svc.RedeemPoints(context.Background(), order, 300)
	require.ErrorIs(t, err, domain.ErrInsufficientPoints)
	require.Equal(t, int64(0), order.LoyaltyPointsRedeemed)
}

func TestRedeemPoints_CannotExceedTotal(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 5000))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})

	err := f.svc.RedeemPoints(context.Background(), order, 1500)
	require.ErrorIs(t, err, domain.ErrPointsExceedTotal)
}

func TestRefundPoints_CreditsBack(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 500))
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 1000}})
	require.NoError(t, f.svc.RedeemPoints(context.Background(), order, 300))

	require.NoError(t, f.svc.RefundPoints(context.Background(), order))
	balance, err := f.svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestEarnPoints_UsesPostDiscountTotal(t *testing.T) {
	f := newLedger(t, nil)
	order := ledgerOrder(t, []ordersdomain.LineItem{{ProductID: "sku-1", Quantity: 1, UnitPrice: 2550}})

	points, err := f.svc.EarnPoints(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, int64(25), points)

	balance, err := f.svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)
}

func TestItemDiscount_PicksHighestQualifyingTier(t *testing.T) {
	f := newLedger(t, nil)
	require.NoError(t, f.tiers.SetTiers(context.Background(), "sku-1", []domain.BulkTier{
		{MinQty: 5, PercentOff: 5},
		{MinQty: 10, PercentOff: 10},
	}))

	discount, err := f.svc.ItemDiscount(context.Background(), "sku-1", 12, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1200), discount)

	discount, err = f.svc.ItemDiscount(context.Background(), "sku-1", 6, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(300), discount)

	discount, err = f.svc.ItemDiscount(context.Background(), "sku-1", 2, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), discount)
}
