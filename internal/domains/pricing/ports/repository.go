package ports

import (
	"context"
	"errors"

	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
)

var ErrNotFound = errors.New("coupon not found")

// CouponRepository stores coupon definitions and usage counters.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Save(ctx context.Context, coupon *domain.Coupon) error
	// IncrementUsage bumps the counter atomically, respecting the usage limit.
	IncrementUsage(ctx context.Context, code string) error
}

// TierRepository stores per-product bulk discount tiers.
type TierRepository interface {
	TiersFor(ctx context.Context, productID string) ([]domain.BulkTier, error)
	SetTiers(ctx context.Context, productID string, tiers []domain.BulkTier) error
}

// LoyaltyStore is the running balance of redeemable points per user.
// Debit is atomic: it fails with domain.ErrInsufficientPoints rather than
// driving a balance negative.
type LoyaltyStore interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, points int64) error
	Credit(ctx context.Context, userID string, points int64) error
}

// CatalogMeta resolves the category/brand metadata used for coupon scopes.
type CatalogMeta interface {
	Meta(ctx context.Context, productID string) (domain.ProductMeta, error)
}
