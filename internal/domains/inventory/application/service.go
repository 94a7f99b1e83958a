package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/commercekit/orderflow/internal/domains/inventory/domain"
	"github.com/commercekit/orderflow/internal/domains/inventory/ports"
)

// defaultMaxRetries bounds the conditional-update retry loop under contention.
const defaultMaxRetries = 5

// Service is the stock coordinator: reservation, release, and commit over the
// single atomic adjustment primitive.
type Service struct {
	repo       ports.Repository
	maxRetries int
	logger     *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithMaxRetries bounds the retry loop on contention.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger injects a slog logger for low-stock warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService wires the stock coordinator.
func NewService(repo ports.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reserve holds stock for every line or none: when a line fails, the lines
// already held in this call are compensated in reverse order before the error
// is returned.
func (s *Service) Reserve(ctx context.Context, lines []domain.Line) error {
	var held []domain.Line
	for _, line := range lines {
		if line.Quantity <= 0 {
			s.rollback(ctx, held)
			return domain.ErrInvalidQuantity
		}
		if err := s.apply(ctx, line.ProductID, domain.ReserveAdjustment(line.Quantity)); err != nil {
			s.rollback(ctx, held)
			return fmt.Errorf("reserve %s: %w", line.ProductID, err)
		}
		held = append(held, line)
	}
	return nil
}

// Release compensates a reservation, returning stock to the available pool.
func (s *Service) Release(ctx context.Context, lines []domain.Line) error {
	var firstErr error
	for _, line := range lines {
		if err := s.apply(ctx, line.ProductID, domain.ReleaseAdjustment(line.Quantity)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release %s: %w", line.ProductID, err)
		}
	}
	return firstErr
}

// Commit converts a reservation into a permanent decrement and bumps the sold
// count. Idempotency per order is enforced by the caller's processed flag.
func (s *Service) Commit(ctx context.Context, lines []domain.Line) error {
	for _, line := range lines {
		if err := s.apply(ctx, line.ProductID, domain.CommitAdjustment(line.Quantity)); err != nil {
			return fmt.Errorf("commit %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// Restock credits returned units back to the available pool and unwinds the
// sold count. Used by the return workflow for undamaged items.
func (s *Service) Restock(ctx context.Context, lines []domain.Line) error {
	var firstErr error
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if err := s.apply(ctx, line.ProductID, domain.RestockAdjustment(line.Quantity)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("restock %s: %w", line.ProductID, err)
		}
	}
	return firstErr
}

// Get loads one stock item, the price snapshot source for checkout.
func (s *Service) Get(ctx context.Context, productID string) (*domain.StockItem, error) {
	return s.repo.Get(ctx, productID)
}

// List returns all stock items.
func (s *Service) List(ctx context.Context) ([]*domain.StockItem, error) {
	return s.repo.List(ctx)
}

// SetStock creates or replaces a stock row. Used by the product-store sync and
// by tests; the order path never calls it.
func (s *Service) SetStock(ctx context.Context, item *domain.StockItem) error {
	if item == nil || item.ProductID == "" {
		return errors.New("stock item requires a product id")
	}
	return s.repo.Upsert(ctx, item)
}

// apply is the bounded-retry combinator shared by reserve, release, and
// commit: it retries the atomic conditional update on contention and maps an
// exhausted or failed condition to ErrInsufficientStock.
func (s *Service) apply(ctx context.Context, productID string, adj domain.Adjustment) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		item, err := s.repo.Apply(ctx, productID, adj)
		switch {
		case err == nil:
			if item != nil && item.LowStock() && s.logger != nil {
				s.logger.Warn("stock below threshold",
					slog.String("productId", item.ProductID),
					slog.Int64("inventory", item.Inventory),
					slog.Int64("threshold", item.LowStockThreshold))
			}
			return nil
		case errors.Is(err, ports.ErrConditionFailed):
			return domain.ErrInsufficientStock
		case errors.Is(err, ports.ErrContention):
			lastErr = err
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("%w: retries exhausted: %w", domain.ErrInsufficientStock, lastErr)
}

// rollback releases already-held lines in reverse order.
func (s *Service) rollback(ctx context.Context, held []domain.Line) {
	for i := len(held) - 1; i >= 0; i-- {
		if err := s.apply(ctx, held[i].ProductID, domain.ReleaseAdjustment(held[i].Quantity)); err != nil && s.logger != nil {
			s.logger.Error("failed to compensate reservation",
				slog.String("productId", held[i].ProductID),
				slog.String("error", err.Error()))
		}
	}
}
