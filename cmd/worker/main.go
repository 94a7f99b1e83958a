package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/commercekit/orderflow/internal/app/api"
	invmemory "github.com/commercekit/orderflow/internal/domains/inventory/adapters/memory"
	invpostgres "github.com/commercekit/orderflow/internal/domains/inventory/adapters/persistence/postgres"
	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invports "github.com/commercekit/orderflow/internal/domains/inventory/ports"
	ordersmemory "github.com/commercekit/orderflow/internal/domains/orders/adapters/memory"
	ordersnotify "github.com/commercekit/orderflow/internal/domains/orders/adapters/notify"
	ordersobs "github.com/commercekit/orderflow/internal/domains/orders/adapters/observability"
	orderspostgres "github.com/commercekit/orderflow/internal/domains/orders/adapters/persistence/postgres"
	ordersstock "github.com/commercekit/orderflow/internal/domains/orders/adapters/stock"
	ordersapp "github.com/commercekit/orderflow/internal/domains/orders/application"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	paymentsmemory "github.com/commercekit/orderflow/internal/domains/payments/adapters/memory"
	paymentspostgres "github.com/commercekit/orderflow/internal/domains/payments/adapters/persistence/postgres"
	paymentssettlement "github.com/commercekit/orderflow/internal/domains/payments/adapters/settlement"
	paymentsapp "github.com/commercekit/orderflow/internal/domains/payments/application"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
	pricingcatalog "github.com/commercekit/orderflow/internal/domains/pricing/adapters/catalog"
	pricingmemory "github.com/commercekit/orderflow/internal/domains/pricing/adapters/memory"
	pricingpostgres "github.com/commercekit/orderflow/internal/domains/pricing/adapters/persistence/postgres"
	pricingapp "github.com/commercekit/orderflow/internal/domains/pricing/application"
	pricingports "github.com/commercekit/orderflow/internal/domains/pricing/ports"
	settlementworkflows "github.com/commercekit/orderflow/internal/durable/temporal/workflows/payments"
	platformobservability "github.com/commercekit/orderflow/internal/platform/observability"
	platformpostgres "github.com/commercekit/orderflow/internal/platform/postgres"
	paymentactivities "github.com/commercekit/orderflow/internal/platform/temporal/activities/payments"
)

func main() {
	ctx := context.Background()
	const serviceName = "orderflow-worker"
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	db, cleanupDB := platformpostgres.ConnectWithFallback(ctx, cfg.PostgresDSN, logger)
	defer cleanupDB()

	var inventoryRepo invports.Repository = invmemory.NewRepository()
	if db != nil {
		inventoryRepo = invpostgres.NewRepository(db)
	}
	inventoryService := invapp.NewService(inventoryRepo, invapp.WithLogger(logger))
	stockCoordinator := ordersstock.NewCoordinator(inventoryService)

	var coupons pricingports.CouponRepository = pricingmemory.NewCouponRepository()
	var tiers pricingports.TierRepository = pricingmemory.NewTierRepository()
	var loyalty pricingports.LoyaltyStore = pricingmemory.NewLoyaltyStore()
	if db != nil {
		coupons = pricingpostgres.NewCouponRepository(db)
		tiers = pricingpostgres.NewTierRepository(db)
		loyalty = pricingpostgres.NewLoyaltyStore(db)
	}
	pricingService := pricingapp.NewService(coupons, tiers, loyalty, pricingcatalog.NewMeta(inventoryService))

	var orderRepo ordersports.Repository = ordersmemory.NewRepository()
	if db != nil {
		orderRepo = orderspostgres.NewRepository(db)
	}
	orderService := ordersobs.New(
		ordersapp.NewService(
			orderRepo,
			stockCoordinator,
			stockCoordinator,
			pricingService,
			ordersnotify.NewLogPublisher(logger),
			ordersapp.WithTaxRateBps(cfg.TaxRateBps),
		),
		ordersobs.WithLogger(logger),
		ordersobs.WithTracer(instruments.Tracer("internal.orders.application")),
		ordersobs.WithMeter(instruments.Meter("internal.orders.application")),
	)

	var attempts paymentsports.AttemptRepository = paymentsmemory.NewAttemptRepository()
	var events paymentsports.EventStore = paymentsmemory.NewEventStore()
	if db != nil {
		attempts = paymentspostgres.NewAttemptRepository(db)
		events = paymentspostgres.NewEventStore(db)
	}
	// Captures run with a no-op settler; the mark-paid activity is the single
	// place that touches the order.
	paymentService := paymentsapp.NewService(attempts, events, paymentssettlement.Noop{}, paymentsapp.WithLogger(logger))
	api.RegisterGateways(paymentService, cfg, logger)
	activities := paymentactivities.NewActivities(paymentService, paymentssettlement.NewOrders(orderService))

	tracerOptions := temporalotel.TracerOptions{Tracer: instruments.Tracer("temporal-worker")}
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(tracerOptions)
	if err != nil {
		logger.Error("failed to configure Temporal tracing interceptor", slog.String("error", err.Error()))
		os.Exit(1)
	}
	clientOptions := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(logger),
	}
	clientOptions.Interceptors = append(clientOptions.Interceptors, tracingInterceptor)
	temporalClient, err := client.Dial(clientOptions)
	if err != nil {
		logger.Error("failed to create Temporal client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, settlementworkflows.SettlementTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(settlementworkflows.SettlementWorkflow, workflow.RegisterOptions{Name: settlementworkflows.SettlementWorkflowName})
	w.RegisterActivityWithOptions(activities.CaptureCharge, activity.RegisterOptions{Name: paymentactivities.CaptureChargeActivityName})
	w.RegisterActivityWithOptions(activities.MarkOrderPaid, activity.RegisterOptions{Name: paymentactivities.MarkOrderPaidActivityName})

	logger.Info("worker listening", slog.String("taskQueue", settlementworkflows.SettlementTaskQueue), slog.String("namespace", clientOptions.Namespace))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker exited with error", slog.String("error", err.Error()))
		return
	}
	logger.Info("Temporal worker stopped")
}
