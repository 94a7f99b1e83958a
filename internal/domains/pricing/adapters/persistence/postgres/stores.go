package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/commercekit/orderflow/internal/domains/pricing/domain"
	"github.com/commercekit/orderflow/internal/domains/pricing/ports"
)

var (
	_ ports.CouponRepository = (*CouponRepository)(nil)
	_ ports.TierRepository   = (*TierRepository)(nil)
	_ ports.LoyaltyStore     = (*LoyaltyStore)(nil)
)

// CouponRepository persists coupons in PostgreSQL using GORM.
type CouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository wires a PostgreSQL-backed coupon store.
func NewCouponRepository(db *gorm.DB) *CouponRepository {
	repo := &CouponRepository{db: db}
	if db != nil {
		_ = db.AutoMigrate(&couponRecord{})
	}
	return repo
}

type couponRecord struct {
	Code        string       `gorm:"primaryKey;column:code"`
	Percent     int64        `gorm:"column:percent"`
	FixedAmount int64        `gorm:"column:fixed_amount"`
	MinPurchase int64        `gorm:"column:min_purchase"`
	ExpiresAt   time.Time    `gorm:"column:expires_at"`
	UsageLimit  int64        `gorm:"column:usage_limit"`
	UsedCount   int64        `gorm:"column:used_count"`
	Scope       domain.Scope `gorm:"column:scope;serializer:json"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at"`
}

func (couponRecord) TableName() string { return "coupons" }

// GetByCode fetches one coupon.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var record couponRecord
	if err := r.db.WithContext(ctx).First(&record, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// Save creates or replaces a coupon definition.
func (r *CouponRepository) Save(ctx context.Context, coupon *domain.Coupon) error {
	record := couponRecord{
		Code:        coupon.Code,
		Percent:     coupon.Percent,
		FixedAmount: coupon.FixedAmount,
		MinPurchase: coupon.MinPurchase,
		ExpiresAt:   coupon.ExpiresAt,
		UsageLimit:  coupon.UsageLimit,
		UsedCount:   coupon.UsedCount,
		Scope:       coupon.Scope,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// IncrementUsage bumps the counter with a conditional UPDATE so the usage cap
// holds under concurrency.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Model(&couponRecord{}).
		Where("code = ? AND (usage_limit = 0 OR used_count < usage_limit)", code).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByCode(ctx, code); errors.Is(err, ports.ErrNotFound) {
			return ports.ErrNotFound
		}
		return domain.ErrCouponInvalid
	}
	return nil
}

func (r couponRecord) toDomain() *domain.Coupon {
	return &domain.Coupon{
		Code:        r.Code,
		Percent:     r.Percent,
		FixedAmount: r.FixedAmount,
		MinPurchase: r.MinPurchase,
		ExpiresAt:   r.ExpiresAt,
		UsageLimit:  r.UsageLimit,
		UsedCount:   r.UsedCount,
		Scope:       r.Scope,
	}
}

// TierRepository persists bulk tiers in PostgreSQL.
type TierRepository struct {
	db *gorm.DB
}

// NewTierRepository wires a PostgreSQL-backed tier store.
func NewTierRepository(db *gorm.DB) *TierRepository {
	repo := &TierRepository{db: db}
	if db != nil {
		_ = db.AutoMigrate(&tierRecord{})
	}
	return repo
}

type tierRecord struct {
	ProductID string            `gorm:"primaryKey;column:product_id"`
	Tiers     []domain.BulkTier `gorm:"column:tiers;serializer:json"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (tierRecord) TableName() string { return "bulk_tiers" }

// TiersFor returns the tiers configured for a product; missing rows mean none.
func (r *TierRepository) TiersFor(ctx context.Context, productID string) ([]domain.BulkTier, error) {
	var record tierRecord
	if err := r.db.WithContext(ctx).First(&record, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record.Tiers, nil
}

// SetTiers replaces the tiers for a product.
func (r *TierRepository) SetTiers(ctx context.Context, productID string, tiers []domain.BulkTier) error {
	record := tierRecord{ProductID: productID, Tiers: tiers}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// LoyaltyStore persists loyalty balances in PostgreSQL. Debit is a conditional
// UPDATE so balances never go negative under concurrency.
type LoyaltyStore struct {
	db *gorm.DB
}

// NewLoyaltyStore wires a PostgreSQL-backed loyalty ledger.
func NewLoyaltyStore(db *gorm.DB) *LoyaltyStore {
	store := &LoyaltyStore{db: db}
	if db != nil {
		_ = db.AutoMigrate(&loyaltyRecord{})
	}
	return store
}

type loyaltyRecord struct {
	UserID    string    `gorm:"primaryKey;column:user_id"`
	Balance   int64     `gorm:"column:balance"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (loyaltyRecord) TableName() string { return "loyalty_accounts" }

// Balance reads the current balance; unknown users have zero.
func (s *LoyaltyStore) Balance(ctx context.Context, userID string) (int64, error) {
	var record loyaltyRecord
	if err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return record.Balance, nil
}

// Debit subtracts points only when the balance suffices.
func (s *LoyaltyStore) Debit(ctx context.Context, userID string, points int64) error {
	result := s.db.WithContext(ctx).
		Model(&loyaltyRecord{}).
		Where("user_id = ? AND balance >= ?", userID, points).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", points),
			"updated_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientPoints
	}
	return nil
}

// Credit adds points, creating the account row on first touch.
func (s *LoyaltyStore) Credit(ctx context.Context, userID string, points int64) error {
	record := loyaltyRecord{UserID: userID, Balance: points}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("loyalty_accounts.balance + ?", points),
			"updated_at": gorm.Expr("NOW()"),
		}),
	}).Create(&record).Error
}
