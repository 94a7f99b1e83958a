package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
	"github.com/commercekit/orderflow/internal/domains/pricing/ports"
)

// Service is the discount ledger: coupons, loyalty points, and bulk tiers.
// It implements the orders context's Pricing port.
type Service struct {
	coupons ports.CouponRepository
	tiers   ports.TierRepository
	loyalty ports.LoyaltyStore
	catalog ports.CatalogMeta

	// redeemRate is minor units credited per redeemed point.
	redeemRate int64
	// earnDivisor is minor units of paid total per earned point.
	earnDivisor int64
	now         func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithRedeemRate sets minor units credited per redeemed point.
func WithRedeemRate(rate int64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.redeemRate = rate
		}
	}
}

// WithEarnDivisor sets minor units of paid total per earned point.
func WithEarnDivisor(divisor int64) Option {
	return func(s *Service) {
		if divisor > 0 {
			s.earnDivisor = divisor
		}
	}
}

// WithClock overrides the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the discount ledger with its stores.
func NewService(coupons ports.CouponRepository, tiers ports.TierRepository, loyalty ports.LoyaltyStore, catalog ports.CatalogMeta, opts ...Option) *Service {
	s := &Service{
		coupons:     coupons,
		tiers:       tiers,
		loyalty:     loyalty,
		catalog:     catalog,
		redeemRate:  1,
		earnDivisor: 100,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ItemDiscount returns the bulk/tiered discount for one line. The highest
// quantity threshold the requested quantity qualifies for wins.
func (s *Service) ItemDiscount(ctx context.Context, productID string, quantity, unitPrice int64) (int64, error) {
	tiers, err := s.tiers.TiersFor(ctx, productID)
	if err != nil {
		return 0, err
	}
	tier, ok := domain.BestTier(tiers, quantity)
	if !ok {
		return 0, nil
	}
	return unitPrice * quantity * tier.PercentOff / 100, nil
}

// ApplyCoupon validates the code against the order, computes the discount over
// the in-scope line items, and updates the order's money fields.
func (s *Service) ApplyCoupon(ctx context.Context, order *ordersdomain.Order, code string) error {
	coupon, err := s.coupons.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if err == ports.ErrNotFound {
			return fmt.Errorf("%w: %q", domain.ErrCouponInvalid, code)
		}
		return err
	}
	if err := coupon.Validate(s.now()); err != nil {
		return err
	}
	eligible, err := s.eligibleAmount(ctx, order, coupon.Scope)
	if err != nil {
		return err
	}
	discount, err := coupon.DiscountOn(order.Subtotal, eligible)
	if err != nil {
		return err
	}
	if err := s.coupons.IncrementUsage(ctx, coupon.Code); err != nil {
		return err
	}
	order.CouponCode = coupon.Code
	order.DiscountAmount += discount
	order.Recalculate()
	order.AddNote(fmt.Sprintf("coupon %s applied: -%d", coupon.Code, discount))
	return nil
}

// RedeemPoints converts loyalty points into an order discount at the fixed
// rate, debiting the balance atomically. The debit is credited back when the
// order is cancelled.
func (s *Service) RedeemPoints(ctx context.Context, order *ordersdomain.Order, points int64) error {
	if points <= 0 {
		return domain.ErrInsufficientPoints
	}
	credit := points * s.redeemRate
	if credit > order.Total {
		return domain.ErrPointsExceedTotal
	}
	if err := s.loyalty.Debit(ctx, order.UserID, points); err != nil {
		return err
	}
	order.LoyaltyPointsRedeemed += points
	order.DiscountAmount += credit
	order.Recalculate()
	order.AddNote(fmt.Sprintf("redeemed %d point(s) for -%d", points, credit))
	return nil
}

// RefundPoints credits redeemed points back to the user's balance.
func (s *Service) RefundPoints(ctx context.Context, order *ordersdomain.Order) error {
	if order.LoyaltyPointsRedeemed <= 0 {
		return nil
	}
	return s.loyalty.Credit(ctx, order.UserID, order.LoyaltyPointsRedeemed)
}

// EarnPoints computes accrual from the post-discount paid total and credits
// the balance. The at-most-once guard lives on the order aggregate.
func (s *Service) EarnPoints(ctx context.Context, order *ordersdomain.Order) (int64, error) {
	points := order.Total / s.earnDivisor
	if points <= 0 {
		return 0, nil
	}
	if err := s.loyalty.Credit(ctx, order.UserID, points); err != nil {
		return 0, err
	}
	return points, nil
}

// Balance reads a user's loyalty balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.loyalty.Balance(ctx, userID)
}

// BulkDiscount exposes the winning tier for a product/quantity pair.
func (s *Service) BulkDiscount(ctx context.Context, productID string, quantity int64) (domain.BulkTier, bool, error) {
	tiers, err := s.tiers.TiersFor(ctx, productID)
	if err != nil {
		return domain.BulkTier{}, false, err
	}
	tier, ok := domain.BestTier(tiers, quantity)
	return tier, ok, nil
}

// eligibleAmount sums line totals covered by the coupon scope.
func (s *Service) eligibleAmount(ctx context.Context, order *ordersdomain.Order, scope domain.Scope) (int64, error) {
	var eligible int64
	for _, item := range order.Items {
		meta := domain.ProductMeta{}
		if s.catalog != nil {
			resolved, err := s.catalog.Meta(ctx, item.ProductID)
			if err == nil {
				meta = resolved
			}
		}
		if scope.Covers(item.ProductID, meta) {
			eligible += item.Total()
		}
	}
	return eligible, nil
}

var _ ordersports.Pricing = (*Service)(nil)
