package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	invmemory "github.com/commercekit/orderflow/internal/domains/inventory/adapters/memory"
	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	ordersmemory "github.com/commercekit/orderflow/internal/domains/orders/adapters/memory"
	ordersstock "github.com/commercekit/orderflow/internal/domains/orders/adapters/stock"
	"github.com/commercekit/orderflow/internal/domains/orders/application/types"
	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
	pricingmemory "github.com/commercekit/orderflow/internal/domains/pricing/adapters/memory"
	pricingapp "github.com/commercekit/orderflow/internal/domains/pricing/application"
	pricingdomain "github.com/commercekit/orderflow/internal/domains/pricing/domain"
)

type fixture struct {
	svc       *Service
	repo      ports.Repository
	inventory *invapp.Service
	coupons   *pricingmemory.CouponRepository
	tiers     *pricingmemory.TierRepository
	loyalty   *pricingmemory.LoyaltyStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	inventory := invapp.NewService(invmemory.NewRepository())
	coordinator := ordersstock.NewCoordinator(inventory)
	coupons := pricingmemory.NewCouponRepository()
	tiers := pricingmemory.NewTierRepository()
	loyalty := pricingmemory.NewLoyaltyStore()
	pricing := pricingapp.NewService(coupons, tiers, loyalty, nil)
	repo := ordersmemory.NewRepository()
	return &fixture{
		svc:       NewService(repo, coordinator, coordinator, pricing, nil, opts...),
		repo:      repo,
		inventory: inventory,
		coupons:   coupons,
		tiers:     tiers,
		loyalty:   loyalty,
	}
}

func (f *fixture) seedStock(t *testing.T, productID string, inventory, unitPrice int64) {
	t.Helper()
	require.NoError(t, f.inventory.SetStock(context.Background(), &invdomain.StockItem{
		ProductID: productID,
		Name:      "Product " + productID,
		UnitPrice: unitPrice,
		Inventory: inventory,
	}))
}

func (f *fixture) stockItem(t *testing.T, productID string) *invdomain.StockItem {
	t.Helper()
	item, err := f.inventory.Get(context.Background(), productID)
	require.NoError(t, err)
	return item
}

func checkoutInput() types.CreateOrderInput {
	return types.CreateOrderInput{
		UserID:   "user-1",
		Currency: "USD",
		Items:    []types.CartItem{{ProductID: "sku-1", Quantity: 2}},
		Shipping: types.ShippingInput{
			Name:    "Ada",
			Line1:   "1 Main St",
			City:    "Springfield",
			Country: "US",
		},
	}
}

func TestCreateOrder_SnapshotsPricesAndReservesStock(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)

	input := checkoutInput()
	input.ShippingPrice = 500
	order, err := f.svc.CreateOrder(context.Background(), input)

	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, order.Status)
	require.Equal(t, domain.PaymentUnpaid, order.PaymentStatus)
	require.Equal(t, int64(3000), order.Subtotal)
	require.Equal(t, int64(3500), order.Total)
	require.Equal(t, int64(3500), order.AmountDue)
	require.NotEmpty(t, order.Number)

	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(8), item.Inventory)
	require.Equal(t, int64(2), item.Reserved)
}

func TestCreateOrder_AppliesTax(t *testing.T) {
	f := newFixture(t, WithTaxRateBps(900))
	f.seedStock(t, "sku-1", 10, 1500)

	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())

	require.NoError(t, err)
	require.Equal(t, int64(270), order.TaxAmount)
	require.Equal(t, int64(3270), order.Total)
	require.NoError(t, order.CheckInvariants())
}

func TestCreateOrder_AppliesBulkTierDiscount(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 20, 1000)
	require.NoError(t, f.tiers.SetTiers(context.Background(), "sku-1", []pricingdomain.BulkTier{
		{MinQty: 5, PercentOff: 5},
		{MinQty: 10, PercentOff: 10},
	}))

	input := checkoutInput()
	input.Items = []types.CartItem{{ProductID: "sku-1", Quantity: 10}}
	order, err := f.svc.CreateOrder(context.Background(), input)

	require.NoError(t, err)
	require.Equal(t, int64(1000), order.Items[0].Discount)
	require.Equal(t, int64(9000), order.Subtotal)
}

func TestCreateOrder_InsufficientStockRollsBackReservation(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	f.seedStock(t, "sku-2", 3, 2000)

	input := checkoutInput()
	input.Items = []types.CartItem{
		{ProductID: "sku-1", Quantity: 2},
		{ProductID: "sku-2", Quantity: 5},
	}
	_, err := f.svc.CreateOrder(context.Background(), input)

	require.ErrorIs(t, err, invdomain.ErrInsufficientStock)
	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(10), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)
}

func TestCreateOrder_WithCouponAndPoints(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.coupons.Save(context.Background(), &pricingdomain.Coupon{
		Code:        "SAVE10",
		Percent:     10,
		MinPurchase: 1000,
		Scope:       pricingdomain.Scope{Global: true},
	}))
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 500))

	input := checkoutInput()
	input.CouponCode = "SAVE10"
	input.RedeemPoints = 200
	order, err := f.svc.CreateOrder(context.Background(), input)

	require.NoError(t, err)
	require.Equal(t, "SAVE10", order.CouponCode)
	require.Equal(t, int64(200), order.LoyaltyPointsRedeemed)
	// 10% of 3000 plus 200 points at 1 minor unit each.
	require.Equal(t, int64(500), order.DiscountAmount)
	require.Equal(t, int64(2500), order.Total)
	require.NoError(t, order.CheckInvariants())

	balance, err := f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(300), balance)
}

func TestCreateOrder_ExpiredCouponReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.coupons.Save(context.Background(), &pricingdomain.Coupon{
		Code:      "OLD",
		Percent:   10,
		ExpiresAt: time.Now().Add(-time.Hour),
		Scope:     pricingdomain.Scope{Global: true},
	}))

	input := checkoutInput()
	input.CouponCode = "OLD"
	_, err := f.svc.CreateOrder(context.Background(), input)

	require.ErrorIs(t, err, pricingdomain.ErrCouponExpired)
	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(10), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)
}

func TestCreateOrder_MinPurchaseNotMet(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.coupons.Save(context.Background(), &pricingdomain.Coupon{
		Code:        "BIGSPEND",
		Percent:     10,
		MinPurchase: 10000,
		Scope:       pricingdomain.Scope{Global: true},
	}))

	input := checkoutInput()
	input.CouponCode = "BIGSPEND"
	_, err := f.svc.CreateOrder(context.Background(), input)
	require.ErrorIs(t, err, pricingdomain.ErrCouponNotApplicable)
}

func TestApplyCoupon_PricesIntoPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.coupons.Save(context.Background(), &pricingdomain.Coupon{
		Code:    "SAVE10",
		Percent: 10,
		Scope:   pricingdomain.Scope{Global: true},
	}))
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	updated, err := f.svc.ApplyCoupon(context.Background(), order.ID, "SAVE10")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", updated.CouponCode)
	require.Equal(t, int64(300), updated.DiscountAmount)
	require.Equal(t, int64(2700), updated.Total)
	require.NoError(t, updated.CheckInvariants())

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "SAVE10", stored.CouponCode)
	require.Equal(t, int64(2700), stored.Total)
}

func TestApplyCoupon_NoStackingOrLatePricing(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.coupons.Save(context.Background(), &pricingdomain.Coupon{
		Code:    "SAVE10",
		Percent: 10,
		Scope:   pricingdomain.Scope{Global: true},
	}))
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(context.Background(), order.ID, "SAVE10")
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(context.Background(), order.ID, "SAVE10")
	require.ErrorIs(t, err, ErrInvalidInput)

	paidOrder, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)
	_, err = f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       paidOrder.ID,
		TransactionID: "txn-1",
		Amount:        3000,
	})
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(context.Background(), paidOrder.ID, "SAVE10")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRedeemPoints_DebitsBalanceOnce(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 500))
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	updated, err := f.svc.RedeemPoints(context.Background(), order.ID, 200)
	require.NoError(t, err)
	require.Equal(t, int64(200), updated.LoyaltyPointsRedeemed)
	require.Equal(t, int64(200), updated.DiscountAmount)
	require.Equal(t, int64(2800), updated.Total)

	balance, err := f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(300), balance)

	// One redemption per order; the balance must not be debited again.
	_, err = f.svc.RedeemPoints(context.Background(), order.ID, 100)
	require.ErrorIs(t, err, ErrInvalidInput)
	balance, err = f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(300), balance)
}

func TestMarkAsPaid_SettlesOnceAndReplaysAreNoOps(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	paid, err := f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "txn-1",
		Amount:        3000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
	require.True(t, paid.StockCommitted)
	require.True(t, paid.PointsAwarded)
	require.Equal(t, int64(30), paid.LoyaltyPointsEarned)

	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(0), item.Reserved)
	require.Equal(t, int64(2), item.SoldCount)

	balance, err := f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(30), balance)

	// Replaying the same transaction must not double anything.
	replay, err := f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "txn-1",
		Amount:        3000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3000), replay.AmountPaid)

	item = f.stockItem(t, "sku-1")
	require.Equal(t, int64(2), item.SoldCount)
	balance, err = f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(30), balance)
}

func TestMarkAsPaid_PartialDoesNotCommitStock(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	paid, err := f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "txn-1",
		Amount:        1000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartial, paid.PaymentStatus)
	require.False(t, paid.StockCommitted)

	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(2), item.Reserved)
	require.Equal(t, int64(0), item.SoldCount)
}

func TestMarkAsPaid_FlaggedOrderIsHeld(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	stored.Flag("manual review")
	_, err = f.repo.Save(context.Background(), stored)
	require.NoError(t, err)

	_, err = f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "txn-1",
		Amount:        3000,
	})
	require.ErrorIs(t, err, ErrComplianceHold)
}

func TestRecordRefund_CappedByRemainingPaid(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 2500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	_, err = f.svc.MarkAsPaid(context.Background(), types.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "txn-1",
		Amount:        5000,
	})
	require.NoError(t, err)

	refunded, err := f.svc.RecordRefund(context.Background(), order.ID, 3000, "damaged")
	require.NoError(t, err)
	require.Equal(t, int64(3000), refunded.RefundedAmount)
	require.Equal(t, domain.PaymentRefunded, refunded.PaymentStatus)

	_, err = f.svc.RecordRefund(context.Background(), order.ID, 4000, "second claim")
	require.ErrorIs(t, err, domain.ErrRefundExceedsPaid)
}

func TestCancelOrder_ReleasesStockAndRefundsPoints(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	require.NoError(t, f.loyalty.Credit(context.Background(), "user-1", 500))

	input := checkoutInput()
	input.RedeemPoints = 200
	order, err := f.svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(context.Background(), types.CancelOrderInput{
		OrderID: order.ID,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)

	item := f.stockItem(t, "sku-1")
	require.Equal(t, int64(10), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)

	balance, err := f.loyalty.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestCancelOrder_RejectedAfterDelivery(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	for _, status := range []domain.Status{domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered} {
		_, err = f.svc.UpdateStatus(context.Background(), types.UpdateStatusInput{OrderID: order.ID, Status: status})
		require.NoError(t, err)
	}

	_, err = f.svc.CancelOrder(context.Background(), types.CancelOrderInput{OrderID: order.ID})
	require.ErrorIs(t, err, domain.ErrNotCancellable)
}

func TestUpdateStatus_RejectsInvalidEdges(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), types.UpdateStatusInput{OrderID: order.ID, Status: domain.StatusShipped})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(context.Background(), types.UpdateStatusInput{OrderID: order.ID, Status: domain.StatusReturned})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSplitOrder_ConservesItemTotal(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	f.seedStock(t, "sku-2", 10, 2000)
	f.seedStock(t, "sku-3", 10, 500)

	input := checkoutInput()
	input.Items = []types.CartItem{
		{ProductID: "sku-1", Quantity: 2},
		{ProductID: "sku-2", Quantity: 1},
		{ProductID: "sku-3", Quantity: 4},
	}
	order, err := f.svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	before := order.ItemTotal()

	result, err := f.svc.SplitOrder(context.Background(), types.SplitOrderInput{
		OrderID:     order.ID,
		ItemIndices: []int{1},
	})
	require.NoError(t, err)
	require.Len(t, result.Original.Items, 2)
	require.Len(t, result.Split.Items, 1)
	require.Equal(t, "sku-2", result.Split.Items[0].ProductID)
	require.Equal(t, before, result.Original.ItemTotal()+result.Split.ItemTotal())
	require.Equal(t, order.UserID, result.Split.UserID)
	require.NoError(t, result.Original.CheckInvariants())
	require.NoError(t, result.Split.CheckInvariants())
}

func TestSplitOrder_MustLeaveItemsOnBothSides(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	_, err = f.svc.SplitOrder(context.Background(), types.SplitOrderInput{
		OrderID:     order.ID,
		ItemIndices: []int{0},
	})
	require.ErrorIs(t, err, domain.ErrEmptySplit)

	_, err = f.svc.SplitOrder(context.Background(), types.SplitOrderInput{OrderID: order.ID})
	require.ErrorIs(t, err, domain.ErrEmptySplit)
}

// flakyRepo fails a fixed number of Saves with a version conflict before
// delegating, simulating a losing concurrent writer.
type flakyRepo struct {
	ports.Repository
	conflicts int
}

func (r *flakyRepo) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if r.conflicts > 0 {
		r.conflicts--
		return nil, ports.ErrVersionConflict
	}
	return r.Repository.Save(ctx, order)
}

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	flaky := &flakyRepo{Repository: f.repo, conflicts: 1}
	svc := NewService(flaky, f.svc.stock, f.svc.catalog, f.svc.pricing, nil)

	updated, err := svc.MarkPaymentFailed(context.Background(), order.ID, "card declined")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, updated.PaymentStatus)
}

func TestMutate_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "sku-1", 10, 1500)
	order, err := f.svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	flaky := &flakyRepo{Repository: f.repo, conflicts: maxSaveAttempts}
	svc := NewService(flaky, f.svc.stock, f.svc.catalog, f.svc.pricing, nil)

	_, err = svc.MarkPaymentFailed(context.Background(), order.ID, "card declined")
	require.ErrorIs(t, err, ports.ErrVersionConflict)
}
