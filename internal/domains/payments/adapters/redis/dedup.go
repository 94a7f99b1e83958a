// Package redis layers a fast webhook dedup check over the durable event
// store. Providers retry deliveries within seconds; the SETNX check answers
// those without a database round trip, while the durable store stays the
// source of truth.
package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

var _ ports.EventStore = (*EventStore)(nil)

const defaultTTL = 24 * time.Hour

// EventStore decorates a durable event store with a redis fast path.
type EventStore struct {
	client  *goredis.Client
	durable ports.EventStore
	ttl     time.Duration
	logger  *slog.Logger
}

// Option customizes the store.
type Option func(*EventStore)

// WithTTL bounds how long dedup keys live in redis.
func WithTTL(ttl time.Duration) Option {
	return func(s *EventStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEventStore wraps the durable store. A nil client degrades to the
// durable store alone.
func NewEventStore(client *goredis.Client, durable ports.EventStore, opts ...Option) *EventStore {
	s := &EventStore{
		client:  client,
		durable: durable,
		ttl:     defaultTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// MarkProcessed answers duplicates from redis when possible and records
// fresh events durably. Redis errors fall through to the durable store.
func (s *EventStore) MarkProcessed(ctx context.Context, gateway, providerEventID string) (bool, error) {
	if s.client != nil {
		key := "webhook:" + gateway + ":" + providerEventID
		set, err := s.client.SetNX(ctx, key, 1, s.ttl).Result()
		if err != nil {
			s.logger.WarnContext(ctx, "webhook dedup cache unavailable",
				slog.String("gateway", gateway),
				slog.String("error", err.Error()))
		} else if !set {
			return false, nil
		}
	}
	return s.durable.MarkProcessed(ctx, gateway, providerEventID)
}

// Unmark drops the cache key and reopens the event in the durable store. A
// redis failure is logged; the durable store decides duplicates either way.
func (s *EventStore) Unmark(ctx context.Context, gateway, providerEventID string) error {
	if s.client != nil {
		key := "webhook:" + gateway + ":" + providerEventID
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.WarnContext(ctx, "webhook dedup cache unavailable",
				slog.String("gateway", gateway),
				slog.String("error", err.Error()))
		}
	}
	return s.durable.Unmark(ctx, gateway, providerEventID)
}
