// Package notify publishes order lifecycle events. The slog publisher is the
// default sink; a broker-backed implementation can replace it behind the
// same port.
package notify

import (
	"context"
	"log/slog"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
	"github.com/commercekit/orderflow/internal/domains/orders/ports"
)

var _ ports.Notifier = (*LogPublisher)(nil)

// LogPublisher emits events as structured log lines.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher wraps a slog logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event. Event delivery is fire-and-forget for the order
// path.
func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) {
	p.logger.InfoContext(ctx, "order event",
		slog.String("event", event.EventName()),
		slog.Time("occurred_at", event.OccurredAt()),
		slog.Any("payload", event))
}
