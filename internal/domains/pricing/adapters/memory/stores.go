package memory

import (
	"context"
	"sync"

	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
	"github.com/commercekit/orderflow/internal/domains/pricing/ports"
)

var (
	_ ports.CouponRepository = (*CouponRepository)(nil)
	_ ports.TierRepository   = (*TierRepository)(nil)
	_ ports.LoyaltyStore     = (*LoyaltyStore)(nil)
)

// CouponRepository provides an in-memory implementation for development and tests.
type CouponRepository struct {
	mu      sync.Mutex
	coupons map[string]*domain.Coupon
}

// NewCouponRepository constructs an empty in-memory store.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{coupons: map[string]*domain.Coupon{}}
}

// GetByCode returns a copy of the coupon.
func (r *CouponRepository) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *coupon
	return &copied, nil
}

// Save creates or replaces a coupon.
func (r *CouponRepository) Save(_ context.Context, coupon *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *coupon
	r.coupons[coupon.Code] = &copied
	return nil
}

// IncrementUsage bumps the counter under the store lock.
func (r *CouponRepository) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[code]
	if !ok {
		return ports.ErrNotFound
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return domain.ErrCouponInvalid
	}
	coupon.UsedCount++
	return nil
}

// TierRepository provides in-memory bulk tier storage.
type TierRepository struct {
	mu    sync.RWMutex
	tiers map[string][]domain.BulkTier
}

// NewTierRepository constructs an empty in-memory store.
func NewTierRepository() *TierRepository {
	return &TierRepository{tiers: map[string][]domain.BulkTier{}}
}

// TiersFor returns the tiers configured for a product.
func (r *TierRepository) TiersFor(_ context.Context, productID string) ([]domain.BulkTier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.BulkTier(nil), r.tiers[productID]...), nil
}

// SetTiers replaces the tiers for a product.
func (r *TierRepository) SetTiers(_ context.Context, productID string, tiers []domain.BulkTier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[productID] = append([]domain.BulkTier(nil), tiers...)
	return nil
}

// LoyaltyStore provides an in-memory loyalty ledger. Debit never drives a
// balance negative.
type LoyaltyStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewLoyaltyStore constructs an empty in-memory ledger.
func NewLoyaltyStore() *LoyaltyStore {
	return &LoyaltyStore{balances: map[string]int64{}}
}

// Balance reads the current balance.
func (s *LoyaltyStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

// Debit subtracts points atomically.
func (s *LoyaltyStore) Debit(_ context.Context, userID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[userID] < points {
		return domain.ErrInsufficientPoints
	}
	s.balances[userID] -= points
	return nil
}

// Credit adds points.
func (s *LoyaltyStore) Credit(_ context.Context, userID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += points
	return nil
}
