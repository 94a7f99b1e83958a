// Package redis wires the shared Redis client used for fast-path deduplication.
package redis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials Redis and returns the client plus a cleanup function. When the
// address is missing or the ping fails, it logs and returns nil so callers fall
// back to the durable-store-only path.
func Connect(ctx context.Context, addr string, logger *slog.Logger) (*redis.Client, func()) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		if logger != nil {
			logger.Warn("REDIS_ADDR not set, webhook dedup runs without cache fast path")
		}
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if logger != nil {
			logger.Warn("failed to connect to redis, webhook dedup runs without cache fast path", slog.String("error", err.Error()))
		}
		_ = client.Close()
		return nil, func() {}
	}
	if logger != nil {
		logger.Info("redis connection established", slog.String("addr", addr))
	}
	return client, func() { _ = client.Close() }
}
