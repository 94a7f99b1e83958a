package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists order aggregates in PostgreSQL using GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository wires a PostgreSQL-backed repository. Caller manages DB lifecycle.
func NewRepository(db *gorm.DB) *Repository {
	repo := &Repository{db: db}
	if db != nil {
		_ = db.AutoMigrate(&orderRecord{})
	}
	return repo
}

// orderRecord maps the order aggregate to a relational table. Nested value
// objects are stored as JSON; the version column backs the optimistic guard.
type orderRecord struct {
	ID                    string                 `gorm:"primaryKey;column:id"`
	Number                string                 `gorm:"column:number;uniqueIndex"`
	UserID                string                 `gorm:"column:user_id;index"`
	Items                 []domain.LineItem      `gorm:"column:items;serializer:json"`
	Shipping              domain.ShippingAddress `gorm:"column:shipping;serializer:json"`
	Subtotal              int64                  `gorm:"column:subtotal"`
	DiscountAmount        int64                  `gorm:"column:discount_amount"`
	TaxAmount             int64                  `gorm:"column:tax_amount"`
	ShippingPrice         int64                  `gorm:"column:shipping_price"`
	Total                 int64                  `gorm:"column:total"`
	AmountPaid            int64                  `gorm:"column:amount_paid"`
	AmountDue             int64                  `gorm:"column:amount_due"`
	RefundedAmount        int64                  `gorm:"column:refunded_amount"`
	Currency              string                 `gorm:"column:currency;type:varchar(8)"`
	Status                string                 `gorm:"column:status;type:varchar(32);index"`
	PaymentStatus         string                 `gorm:"column:payment_status;type:varchar(32);index"`
	PriorityLevel         int                    `gorm:"column:priority_level"`
	LoyaltyPointsEarned   int64                  `gorm:"column:loyalty_points_earned"`
	LoyaltyPointsRedeemed int64                  `gorm:"column:loyalty_points_redeemed"`
	CouponCode            string                 `gorm:"column:coupon_code"`
	ReturnRequest         domain.ReturnRequest   `gorm:"column:return_request;serializer:json"`
	ComplianceStatus      string                 `gorm:"column:compliance_status;type:varchar(16)"`
	FraudScore            float64                `gorm:"column:fraud_score"`
	Notes                 []domain.Note          `gorm:"column:notes;serializer:json"`
	StockCommitted        bool                   `gorm:"column:stock_committed"`
	PointsAwarded         bool                   `gorm:"column:points_awarded"`
	AppliedTransactions   pq.StringArray         `gorm:"column:applied_transactions;type:text[]"`
	Version               int64                  `gorm:"column:version"`
	CreatedAt             time.Time              `gorm:"column:created_at;index"`
	UpdatedAt             time.Time              `gorm:"column:updated_at"`
}

func (orderRecord) TableName() string { return "orders" }

// Create inserts a new aggregate at version 1.
func (r *Repository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	record := toRecord(order)
	record.Version = 1
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return r.GetByID(ctx, record.ID)
}

// Save updates the aggregate only when the stored version matches the loaded
// one; a stale write yields ErrVersionConflict.
func (r *Repository) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	record := toRecord(order)
	result := r.db.WithContext(ctx).
		Model(&orderRecord{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"items":                   record.Items,
			"shipping":                record.Shipping,
			"subtotal":                record.Subtotal,
			"discount_amount":         record.DiscountAmount,
			"tax_amount":              record.TaxAmount,
			"shipping_price":          record.ShippingPrice,
			"total":                   record.Total,
			"amount_paid":             record.AmountPaid,
			"amount_due":              record.AmountDue,
			"refunded_amount":         record.RefundedAmount,
			"status":                  record.Status,
			"payment_status":          record.PaymentStatus,
			"priority_level":          record.PriorityLevel,
			"loyalty_points_earned":   record.LoyaltyPointsEarned,
			"loyalty_points_redeemed": record.LoyaltyPointsRedeemed,
			"coupon_code":             record.CouponCode,
			"return_request":          record.ReturnRequest,
			"compliance_status":       record.ComplianceStatus,
			"fraud_score":             record.FraudScore,
			"notes":                   record.Notes,
			"stock_committed":         record.StockCommitted,
			"points_awarded":          record.PointsAwarded,
			"applied_transactions":    record.AppliedTransactions,
			"version":                 order.Version + 1,
			"updated_at":              gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := r.GetByID(ctx, order.ID); errors.Is(err, ports.ErrNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, ports.ErrVersionConflict
	}
	return r.GetByID(ctx, order.ID)
}

// GetByID fetches an order by internal ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var record orderRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// GetByNumber fetches an order by its human-readable number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var record orderRecord
	if err := r.db.WithContext(ctx).First(&record, "number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// List returns orders matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Model(&orderRecord{}).Order("created_at DESC")
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var records []orderRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(records))
	for i := range records {
		orders = append(orders, records[i].toDomain())
	}
	return orders, nil
}

func (r *Repository) ensureDB() error {
	if r == nil || r.db == nil {
		return errors.New("postgres order repository not configured")
	}
	return nil
}

func toRecord(order *domain.Order) orderRecord {
	return orderRecord{
		ID:                    order.ID,
		Number:                order.Number,
		UserID:                order.UserID,
		Items:                 order.Items,
		Shipping:              order.Shipping,
		Subtotal:              order.Subtotal,
		DiscountAmount:        order.DiscountAmount,
		TaxAmount:             order.TaxAmount,
		ShippingPrice:         order.ShippingPrice,
		Total:                 order.Total,
		AmountPaid:            order.AmountPaid,
		AmountDue:             order.AmountDue,
		RefundedAmount:        order.RefundedAmount,
		Currency:              order.Currency,
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		PriorityLevel:         order.PriorityLevel,
		LoyaltyPointsEarned:   order.LoyaltyPointsEarned,
		LoyaltyPointsRedeemed: order.LoyaltyPointsRedeemed,
		CouponCode:            order.CouponCode,
		ReturnRequest:         order.ReturnRequest,
		ComplianceStatus:      string(order.ComplianceStatus),
		FraudScore:            order.FraudScore,
		Notes:                 order.Notes,
		StockCommitted:        order.StockCommitted,
		PointsAwarded:         order.PointsAwarded,
		AppliedTransactions:   pq.StringArray(order.AppliedTransactions),
		Version:               order.Version,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
}

func (r orderRecord) toDomain() *domain.Order {
	return &domain.Order{
		ID:                    r.ID,
		Number:                r.Number,
		UserID:                r.UserID,
		Items:                 r.Items,
		Shipping:              r.Shipping,
		Subtotal:              r.Subtotal,
		DiscountAmount:        r.DiscountAmount,
		TaxAmount:             r.TaxAmount,
		ShippingPrice:         r.ShippingPrice,
		Total:                 r.Total,
		AmountPaid:            r.AmountPaid,
		AmountDue:             r.AmountDue,
		RefundedAmount:        r.RefundedAmount,
		Currency:              r.Currency,
		Status:                domain.Status(r.Status),
		PaymentStatus:         domain.PaymentStatus(r.PaymentStatus),
		PriorityLevel:         r.PriorityLevel,
		LoyaltyPointsEarned:   r.LoyaltyPointsEarned,
		LoyaltyPointsRedeemed: r.LoyaltyPointsRedeemed,
		CouponCode:            r.CouponCode,
		ReturnRequest:         r.ReturnRequest,
		ComplianceStatus:      domain.ComplianceStatus(r.ComplianceStatus),
		FraudScore:            r.FraudScore,
		Notes:                 r.Notes,
		StockCommitted:        r.StockCommitted,
		PointsAwarded:         r.PointsAwarded,
		AppliedTransactions:   []string(r.AppliedTransactions),
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}
