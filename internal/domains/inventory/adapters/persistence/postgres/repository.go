package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/commercekit/orderflow/internal/domains/inventory/domain"
	"github.com/commercekit/orderflow/internal/domains/inventory/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists stock rows in PostgreSQL using GORM. Adjustments compile
// to one conditional UPDATE so concurrent orders contend on the row lock, not
// on stale reads.
type Repository struct {
	db *gorm.DB
}

// NewRepository wires a PostgreSQL-backed repository. Caller manages DB lifecycle.
func NewRepository(db *gorm.DB) *Repository {
	repo := &Repository{db: db}
	if db != nil {
		_ = db.AutoMigrate(&stockRecord{})
	}
	return repo
}

type stockRecord struct {
	ProductID         string    `gorm:"primaryKey;column:product_id"`
	Name              string    `gorm:"column:name"`
	Category          string    `gorm:"column:category;index"`
	Brand             string    `gorm:"column:brand;index"`
	UnitPrice         int64     `gorm:"column:unit_price"`
	Inventory         int64     `gorm:"column:inventory"`
	Reserved          int64     `gorm:"column:reserved"`
	SoldCount         int64     `gorm:"column:sold_count"`
	LowStockThreshold int64     `gorm:"column:low_stock_threshold"`
	AllowBackorder    bool      `gorm:"column:allow_backorder"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (stockRecord) TableName() string { return "stock_items" }

// Get fetches one stock row.
func (r *Repository) Get(ctx context.Context, productID string) (*domain.StockItem, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var record stockRecord
	if err := r.db.WithContext(ctx).First(&record, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// Apply performs the adjustment as a single conditional UPDATE. Zero affected
// rows means either a missing product or an unmet requirement.
func (r *Repository) Apply(ctx context.Context, productID string, adj domain.Adjustment) (*domain.StockItem, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).
		Model(&stockRecord{}).
		Where("product_id = ?", productID)
	if adj.RequireAvailable > 0 {
		query = query.Where("(inventory >= ? OR allow_backorder)", adj.RequireAvailable)
	}
	if adj.RequireReserved > 0 {
		query = query.Where("reserved >= ?", adj.RequireReserved)
	}
	result := query.Updates(map[string]any{
		"inventory":  gorm.Expr("inventory + ?", adj.InventoryDelta),
		"reserved":   gorm.Expr("reserved + ?", adj.ReservedDelta),
		"sold_count": gorm.Expr("sold_count + ?", adj.SoldDelta),
		"updated_at": gorm.Expr("NOW()"),
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, productID); errors.Is(err, ports.ErrNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, ports.ErrConditionFailed
	}
	return r.Get(ctx, productID)
}

// Upsert creates or replaces a stock row.
func (r *Repository) Upsert(ctx context.Context, item *domain.StockItem) error {
	if err := r.ensureDB(); err != nil {
		return err
	}
	record := stockRecord{
		ProductID:         item.ProductID,
		Name:              item.Name,
		Category:          item.Category,
		Brand:             item.Brand,
		UnitPrice:         item.UnitPrice,
		Inventory:         item.Inventory,
		Reserved:          item.Reserved,
		SoldCount:         item.SoldCount,
		LowStockThreshold: item.LowStockThreshold,
		AllowBackorder:    item.AllowBackorder,
	}
	return r.db.WithContext(ctx).Save(&record).Error
}

// List returns all stock rows.
func (r *Repository) List(ctx context.Context) ([]*domain.StockItem, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var records []stockRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	items := make([]*domain.StockItem, 0, len(records))
	for i := range records {
		items = append(items, records[i].toDomain())
	}
	return items, nil
}

func (r *Repository) ensureDB() error {
	if r == nil || r.db == nil {
		return errors.New("postgres stock repository not configured")
	}
	return nil
}

func (r stockRecord) toDomain() *domain.StockItem {
	return &domain.StockItem{
		ProductID:         r.ProductID,
		Name:              r.Name,
		Category:          r.Category,
		Brand:             r.Brand,
		UnitPrice:         r.UnitPrice,
		Inventory:         r.Inventory,
		Reserved:          r.Reserved,
		SoldCount:         r.SoldCount,
		LowStockThreshold: r.LowStockThreshold,
		AllowBackorder:    r.AllowBackorder,
	}
}
