// Command reservation-sweeper cancels stale unpaid orders so their reserved
// stock returns to the pool. It runs as a long-lived sidecar next to the API.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/orderflow/internal/app/api"
	invpostgres "github.com/commercekit/orderflow/internal/domains/inventory/adapters/persistence/postgres"
	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	ordersnotify "github.com/commercekit/orderflow/internal/domains/orders/adapters/notify"
	orderspostgres "github.com/commercekit/orderflow/internal/domains/orders/adapters/persistence/postgres"
	ordersstock "github.com/commercekit/orderflow/internal/domains/orders/adapters/stock"
	ordersapp "github.com/commercekit/orderflow/internal/domains/orders/application"
	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	pricingcatalog "github.com/commercekit/orderflow/internal/domains/pricing/adapters/catalog"
	pricingpostgres "github.com/commercekit/orderflow/internal/domains/pricing/adapters/persistence/postgres"
	pricingapp "github.com/commercekit/orderflow/internal/domains/pricing/application"
	platformpostgres "github.com/commercekit/orderflow/internal/platform/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, cleanup := platformpostgres.ConnectWithFallback(ctx, cfg.PostgresDSN, logger)
	defer cleanup()
	if db == nil {
		log.Fatal("POSTGRES_DSN not set or connection failed; cannot sweep reservations")
	}

	inventoryService := invapp.NewService(invpostgres.NewRepository(db), invapp.WithLogger(logger))
	stockCoordinator := ordersstock.NewCoordinator(inventoryService)
	pricingService := pricingapp.NewService(
		pricingpostgres.NewCouponRepository(db),
		pricingpostgres.NewTierRepository(db),
		pricingpostgres.NewLoyaltyStore(db),
		pricingcatalog.NewMeta(inventoryService),
	)
	orderService := ordersapp.NewService(
		orderspostgres.NewRepository(db),
		stockCoordinator,
		stockCoordinator,
		pricingService,
		ordersnotify.NewLogPublisher(logger),
		ordersapp.WithTaxRateBps(cfg.TaxRateBps),
	)

	logger.Info("reservation sweeper started",
		slog.Duration("ttl", cfg.ReservationTTL),
		slog.Duration("interval", cfg.SweepInterval))

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	sweep(ctx, orderService, cfg.ReservationTTL, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			sweep(ctx, orderService, cfg.ReservationTTL, logger)
		}
	}
}

// sweep cancels pending orders that were never paid within the TTL. Each
// cancellation releases the reserved stock and credits back redeemed points.
func sweep(ctx context.Context, orders ordersports.Service, ttl time.Duration, logger *slog.Logger) {
	pending, err := orders.ListOrders(ctx, ordersports.ListFilter{Status: ordersdomain.StatusPending})
	if err != nil {
		logger.Error("failed to list pending orders", slog.String("error", err.Error()))
		return
	}
	cutoff := time.Now().Add(-ttl)
	swept := 0
	for _, order := range pending {
		if order.PaymentStatus != ordersdomain.PaymentUnpaid || !order.CreatedAt.Before(cutoff) {
			continue
		}
		_, err := orders.CancelOrder(ctx, orderstypes.CancelOrderInput{
			OrderID: order.ID,
			Reason:  "reservation expired",
		})
		if err != nil {
			logger.Warn("failed to cancel stale order", slog.String("orderId", order.ID), slog.String("error", err.Error()))
			continue
		}
		swept++
	}
	if swept > 0 {
		logger.Info("stale reservations released", slog.Int("orders", swept))
	}
}
