package memory

import (
	"context"
	"sync"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

var (
	_ ports.AttemptRepository = (*AttemptRepository)(nil)
	_ ports.EventStore        = (*EventStore)(nil)
)

// AttemptRepository is an in-memory append-only attempt log for development
// and tests.
type AttemptRepository struct {
	mu       sync.Mutex
	attempts []*domain.PaymentAttempt
}

// NewAttemptRepository constructs an empty log.
func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{}
}

// Append stores a copy of the attempt.
func (r *AttemptRepository) Append(_ context.Context, attempt *domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *attempt
	r.attempts = append(r.attempts, &copied)
	return nil
}

// ListByOrder returns the attempts for one order in insertion order.
func (r *AttemptRepository) ListByOrder(_ context.Context, orderID string) ([]*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PaymentAttempt
	for _, attempt := range r.attempts {
		if attempt.OrderID == orderID {
			copied := *attempt
			out = append(out, &copied)
		}
	}
	return out, nil
}

// FindCharge returns the first charge attempt recorded for a provider
// payment id.
func (r *AttemptRepository) FindCharge(_ context.Context, gateway, providerPaymentID string) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.attempts {
		if attempt.Gateway == gateway && attempt.ProviderPaymentID == providerPaymentID && attempt.Type == domain.TypeCharge {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, ports.ErrNotFound
}

// EventStore tracks processed webhook deliveries in memory.
type EventStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewEventStore constructs an empty store.
func NewEventStore() *EventStore {
	return &EventStore{seen: map[string]struct{}{}}
}

// MarkProcessed records the event id; false means it was already recorded.
func (s *EventStore) MarkProcessed(_ context.Context, gateway, providerEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := gateway + ":" + providerEventID
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

// Unmark forgets the event id so a retry of the same delivery is processed.
func (s *EventStore) Unmark(_ context.Context, gateway, providerEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, gateway+":"+providerEventID)
	return nil
}
