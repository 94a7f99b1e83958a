package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

var (
	_ ports.AttemptRepository = (*AttemptRepository)(nil)
	_ ports.EventStore        = (*EventStore)(nil)
)

// AttemptRepository persists the append-only attempt log in PostgreSQL.
// Rows are only ever inserted.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository wires a PostgreSQL-backed attempt log.
func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	repo := &AttemptRepository{db: db}
	if db != nil {
		_ = db.AutoMigrate(&attemptRecord{})
	}
	return repo
}

type attemptRecord struct {
	ID                string    `gorm:"primaryKey;column:id"`
	OrderID           string    `gorm:"column:order_id;index"`
	Gateway           string    `gorm:"column:gateway"`
	ProviderPaymentID string    `gorm:"column:provider_payment_id;index"`
	ProviderEventID   string    `gorm:"column:provider_event_id"`
	Amount            int64     `gorm:"column:amount"`
	Currency          string    `gorm:"column:currency"`
	Type              string    `gorm:"column:type"`
	Status            string    `gorm:"column:status"`
	Reason            string    `gorm:"column:reason"`
	RawResponse       string    `gorm:"column:raw_response"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (attemptRecord) TableName() string { return "payment_attempts" }

// Append inserts one attempt row.
func (r *AttemptRepository) Append(ctx context.Context, attempt *domain.PaymentAttempt) error {
	record := toRecord(attempt)
	return r.db.WithContext(ctx).Create(&record).Error
}

// ListByOrder returns the attempts for one order, oldest first.
func (r *AttemptRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.PaymentAttempt, error) {
	var records []attemptRecord
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	attempts := make([]*domain.PaymentAttempt, 0, len(records))
	for i := range records {
		attempts = append(attempts, records[i].toDomain())
	}
	return attempts, nil
}

// FindCharge resolves the earliest charge attempt for a provider payment id.
func (r *AttemptRepository) FindCharge(ctx context.Context, gateway, providerPaymentID string) (*domain.PaymentAttempt, error) {
	var record attemptRecord
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND provider_payment_id = ? AND type = ?", gateway, providerPaymentID, string(domain.TypeCharge)).
		Order("created_at ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

func toRecord(attempt *domain.PaymentAttempt) attemptRecord {
	return attemptRecord{
		ID:                attempt.ID,
		OrderID:           attempt.OrderID,
		Gateway:           attempt.Gateway,
		ProviderPaymentID: attempt.ProviderPaymentID,
		ProviderEventID:   attempt.ProviderEventID,
		Amount:            attempt.Amount,
		Currency:          attempt.Currency,
		Type:              string(attempt.Type),
		Status:            string(attempt.Status),
		Reason:            attempt.Reason,
		RawResponse:       attempt.RawResponse,
		CreatedAt:         attempt.CreatedAt,
	}
}

func (r attemptRecord) toDomain() *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ID:                r.ID,
		OrderID:           r.OrderID,
		Gateway:           r.Gateway,
		ProviderPaymentID: r.ProviderPaymentID,
		ProviderEventID:   r.ProviderEventID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Type:              domain.AttemptType(r.Type),
		Status:            domain.AttemptStatus(r.Status),
		Reason:            r.Reason,
		RawResponse:       r.RawResponse,
		CreatedAt:         r.CreatedAt,
	}
}

// EventStore is the durable webhook dedup ledger. The unique index on
// (gateway, provider_event_id) makes MarkProcessed race-safe across
// instances.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore wires a PostgreSQL-backed dedup store.
func NewEventStore(db *gorm.DB) *EventStore {
	store := &EventStore{db: db}
	if db != nil {
		_ = db.AutoMigrate(&webhookEventRecord{})
	}
	return store
}

type webhookEventRecord struct {
	Gateway         string    `gorm:"primaryKey;column:gateway"`
	ProviderEventID string    `gorm:"primaryKey;column:provider_event_id"`
	ProcessedAt     time.Time `gorm:"column:processed_at"`
}

func (webhookEventRecord) TableName() string { return "webhook_events" }

// MarkProcessed inserts the event id; a conflicting insert reports a
// duplicate.
func (s *EventStore) MarkProcessed(ctx context.Context, gateway, providerEventID string) (bool, error) {
	record := webhookEventRecord{
		Gateway:         gateway,
		ProviderEventID: providerEventID,
		ProcessedAt:     time.Now().UTC(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Unmark deletes the event id so the provider's retry of a delivery whose
// settlement failed is processed again.
func (s *EventStore) Unmark(ctx context.Context, gateway, providerEventID string) error {
	return s.db.WithContext(ctx).
		Where("gateway = ? AND provider_event_id = ?", gateway, providerEventID).
		Delete(&webhookEventRecord{}).Error
}
