package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"
	"gorm.io/gorm"

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

	pricingcatalog "github.com/commercekit/orderflow/internal/domains/pricing/adapters/catalog"
	pricingmemory "github.com/commercekit/orderflow/internal/domains/pricing/adapters/memory"
	pricingpostgres "github.com/commercekit/orderflow/internal/domains/pricing/adapters/persistence/postgres"
	pricingapp "github.com/commercekit/orderflow/internal/domains/pricing/application"
	pricingports "github.com/commercekit/orderflow/internal/domains/pricing/ports"

	paymentsmemory "github.com/commercekit/orderflow/internal/domains/payments/adapters/memory"
	paymentspostgres "github.com/commercekit/orderflow/internal/domains/payments/adapters/persistence/postgres"
	"github.com/commercekit/orderflow/internal/domains/payments/adapters/providers/paypal"
	"github.com/commercekit/orderflow/internal/domains/payments/adapters/providers/razorpay"
	"github.com/commercekit/orderflow/internal/domains/payments/adapters/providers/stripe"
	paymentsredis "github.com/commercekit/orderflow/internal/domains/payments/adapters/redis"
	paymentssettlement "github.com/commercekit/orderflow/internal/domains/payments/adapters/settlement"
	paymentsworkflows "github.com/commercekit/orderflow/internal/domains/payments/adapters/workflows"
	paymentsapp "github.com/commercekit/orderflow/internal/domains/payments/application"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"

	returnsrestock "github.com/commercekit/orderflow/internal/domains/returns/adapters/restock"
	returnsapp "github.com/commercekit/orderflow/internal/domains/returns/application"

	platformobservability "github.com/commercekit/orderflow/internal/platform/observability"
	platformpostgres "github.com/commercekit/orderflow/internal/platform/postgres"
	platformredis "github.com/commercekit/orderflow/internal/platform/redis"
	"github.com/commercekit/orderflow/internal/server"
)

// Run boots the order fulfillment HTTP API with observability, repositories,
// payment gateways, and settlement workflows wired.
func Run(ctx context.Context) error {
	const serviceName = "orderflow-api"
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
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
	redisClient, cleanupRedis := platformredis.Connect(ctx, cfg.RedisAddr, logger)
	defer cleanupRedis()

	inventoryService := invapp.NewService(buildInventoryRepository(db), invapp.WithLogger(logger))
	stockCoordinator := ordersstock.NewCoordinator(inventoryService)

	coupons, tiers, loyalty := buildPricingStores(db)
	pricingService := pricingapp.NewService(coupons, tiers, loyalty, pricingcatalog.NewMeta(inventoryService))

	coreOrderService := ordersapp.NewService(
		buildOrderRepository(db),
		stockCoordinator,
		stockCoordinator,
		pricingService,
		ordersnotify.NewLogPublisher(logger),
		ordersapp.WithTaxRateBps(cfg.TaxRateBps),
	)
	orderService := ordersobs.New(
		coreOrderService,
		ordersobs.WithLogger(logger),
		ordersobs.WithTracer(instruments.Tracer("internal.orders.application")),
		ordersobs.WithMeter(instruments.Meter("internal.orders.application")),
	)

	attempts, events := buildPaymentStores(db)
	if redisClient != nil {
		events = paymentsredis.NewEventStore(redisClient, events, paymentsredis.WithLogger(logger))
	}
	paymentService := paymentsapp.NewService(
		attempts,
		events,
		paymentssettlement.NewOrders(orderService),
		paymentsapp.WithLogger(logger),
	)
	RegisterGateways(paymentService, cfg, logger)

	var settlements paymentsports.SettlementOrchestrator = paymentsworkflows.NewInlineSettlements(paymentService)
	if temporalClient, err := connectTemporalClient(cfg, instruments); err != nil {
		logger.Warn("Temporal workflows unavailable, settling captures inline", slog.String("error", err.Error()))
	} else {
		defer temporalClient.Close()
		settlements = paymentsworkflows.NewTemporalSettlements(temporalClient)
		logger.Info("Temporal settlement workflows enabled", slog.String("namespace", cfg.TemporalNamespace))
	}

	returnService := returnsapp.NewService(
		orderService,
		paymentService,
		returnsrestock.NewInventory(inventoryService),
		returnsapp.WithLogger(logger),
	)

	handlers := server.Handlers{
		Orders:   server.NewOrdersAPI(orderService),
		Payments: server.NewPaymentsAPI(paymentService, settlements),
		Stock:    server.NewStockAPI(inventoryService),
		Returns:  server.NewReturnsAPI(returnService),
	}
	router := server.NewRouter(serviceName, handlers)
	addr := ":" + cfg.Port
	logger.Info("order fulfillment API listening", slog.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Error("order fulfillment API server exited", slog.String("addr", addr), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func buildInventoryRepository(db *gorm.DB) invports.Repository {
	if db == nil {
		return invmemory.NewRepository()
	}
	return invpostgres.NewRepository(db)
}

func buildOrderRepository(db *gorm.DB) ordersports.Repository {
	if db == nil {
		return ordersmemory.NewRepository()
	}
	return orderspostgres.NewRepository(db)
}

func buildPricingStores(db *gorm.DB) (pricingports.CouponRepository, pricingports.TierRepository, pricingports.LoyaltyStore) {
	if db == nil {
		return pricingmemory.NewCouponRepository(), pricingmemory.NewTierRepository(), pricingmemory.NewLoyaltyStore()
	}
	return pricingpostgres.NewCouponRepository(db), pricingpostgres.NewTierRepository(db), pricingpostgres.NewLoyaltyStore(db)
}

func buildPaymentStores(db *gorm.DB) (paymentsports.AttemptRepository, paymentsports.EventStore) {
	if db == nil {
		return paymentsmemory.NewAttemptRepository(), paymentsmemory.NewEventStore()
	}
	return paymentspostgres.NewAttemptRepository(db), paymentspostgres.NewEventStore(db)
}

// RegisterGateways constructs every configured provider adapter. Providers
// with missing credentials are skipped with a warning so a partial
// configuration still boots. The worker shares this wiring.
func RegisterGateways(service *paymentsapp.Service, cfg Config, logger *slog.Logger) {
	if cfg.Stripe.APIKey != "" {
		gw, err := stripe.New(stripe.Config{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
			Limits:        cfg.Stripe.Limits,
		})
		if err != nil {
			logger.Warn("stripe gateway not registered", slog.String("error", err.Error()))
		} else {
			service.RegisterGateway(gw)
			logger.Info("payment gateway registered", slog.String("gateway", stripe.GatewayName))
		}
	}
	if cfg.Razorpay.KeyID != "" {
		gw, err := razorpay.New(razorpay.Config{
			KeyID:         cfg.Razorpay.KeyID,
			KeySecret:     cfg.Razorpay.KeySecret,
			WebhookSecret: cfg.Razorpay.WebhookSecret,
			BaseURL:       cfg.Razorpay.BaseURL,
			Limits:        cfg.Razorpay.Limits,
		})
		if err != nil {
			logger.Warn("razorpay gateway not registered", slog.String("error", err.Error()))
		} else {
			service.RegisterGateway(gw)
			logger.Info("payment gateway registered", slog.String("gateway", razorpay.GatewayName))
		}
	}
	if cfg.PayPal.ClientID != "" {
		var certPEM []byte
		if cfg.PayPal.CertPath != "" {
			pem, err := os.ReadFile(cfg.PayPal.CertPath)
			if err != nil {
				logger.Warn("failed to read paypal webhook certificate", slog.String("path", cfg.PayPal.CertPath), slog.String("error", err.Error()))
			} else {
				certPEM = pem
			}
		}
		gw, err := paypal.New(paypal.Config{
			ClientID:  cfg.PayPal.ClientID,
			Secret:    cfg.PayPal.Secret,
			WebhookID: cfg.PayPal.WebhookID,
			CertPEM:   certPEM,
			BaseURL:   cfg.PayPal.BaseURL,
			Limits:    cfg.PayPal.Limits,
		})
		if err != nil {
			logger.Warn("paypal gateway not registered", slog.String("error", err.Error()))
		} else {
			service.RegisterGateway(gw)
			logger.Info("payment gateway registered", slog.String("gateway", paypal.GatewayName))
		}
	}
}

func connectTemporalClient(cfg Config, instruments *platformobservability.Instruments) (client.Client, error) {
	if cfg.TemporalDisabled {
		return nil, errors.New("temporal disabled via TEMPORAL_DISABLED env")
	}
	tracerOptions := temporalotel.TracerOptions{}
	if instruments != nil {
		tracerOptions.Tracer = instruments.Tracer("temporal-client")
	}
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(tracerOptions)
	if err != nil {
		return nil, err
	}
	options := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(effectiveLogger(instruments)),
	}
	options.Interceptors = append(options.Interceptors, tracingInterceptor)
	return client.Dial(options)
}

func effectiveLogger(instruments *platformobservability.Instruments) *slog.Logger {
	if instruments != nil && instruments.Logger != nil {
		return instruments.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
