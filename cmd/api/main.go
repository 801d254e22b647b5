package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/smm-storefront/api/routes"
	"github.com/angelmondragon/smm-storefront/internal/analytics"
	"github.com/angelmondragon/smm-storefront/internal/auth"
	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/checkout"
	"github.com/angelmondragon/smm-storefront/internal/coupons"
	"github.com/angelmondragon/smm-storefront/internal/dispatch"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/payments"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/internal/reconcile"
	"github.com/angelmondragon/smm-storefront/internal/refunds"
	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	"github.com/angelmondragon/smm-storefront/pkg/bigquery"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/instance"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/migrate"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
	"github.com/angelmondragon/smm-storefront/pkg/settings"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := buildServices(context.Background(), cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	if cfg.BigQuery.Dataset != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery client", err)
			}
		}()
		queries, err := analytics.NewQueryService(bqClient)
		if err != nil {
			logg.Error(context.Background(), "failed to build analytics queries", err)
			os.Exit(1)
		}
		services.Analytics = queries
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("local"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			routes.Probes{DB: dbClient, Redis: redisClient},
			redisClient,
			prometheus.DefaultGatherer,
			services,
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	conn := dbClient.DB()
	authSvc, err := auth.NewService(auth.ServiceParams{Admin: cfg.Admin, JWT: cfg.JWT, Logger: logg})
	if err != nil {
		return routes.Services{}, err
	}
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	settingsStore := settings.NewGormStore(conn, redisClient, settings.DefaultCacheTTL, logg)
	ordersRepo := orders.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)

	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:        couponRepo,
		Generations: coupons.NewRedisGenerations(redisClient),
		MaxAge:      cfg.Coupons.IndexMaxAge,
		Logger:      logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	if err := couponSvc.WarmIndex(ctx); err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:            dbClient,
		Catalog:       catalogRepo,
		Orders:        ordersRepo,
		CouponRepo:    couponRepo,
		Coupons:       couponSvc,
		Outbox:        outboxSvc,
		Settings:      settingsStore,
		DefaultPrefix: cfg.App.OrderPrefix,
		Logger:        logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	selection := payments.Select(ctx, cfg, logg)
	guards := map[enums.PaymentProvider]payments.WebhookGuard{}
	for _, provider := range []enums.PaymentProvider{enums.PaymentProviderStripe, enums.PaymentProviderSquare} {
		guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookReplayTTL, string(provider)+"-webhook")
		if err != nil {
			return routes.Services{}, err
		}
		guards[provider] = guard
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Tx:         dbClient,
		Payments:   payments.NewRepository(conn),
		Orders:     ordersRepo,
		Outbox:     outboxSvc,
		Active:     selection.Active,
		Registry:   selection.Registry,
		Guards:     guards,
		Settings:   settingsStore,
		Currency:   cfg.App.Currency,
		Production: cfg.App.IsProd(),
		Metrics:    orderMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, logg)
	if err != nil {
		return routes.Services{}, err
	}

	providerRegistry := providers.NewRegistry(cfg.Provider.Timeout, logg)
	dispatchSvc, err := dispatch.NewService(dispatch.ServiceParams{
		Tx:        dbClient,
		Orders:    ordersRepo,
		Catalog:   catalogRepo,
		Providers: providerRegistry,
		Outbox:    outboxSvc,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Tx:       dbClient,
		Payments: payments.NewRepository(conn),
		Orders:   ordersRepo,
		Gateways: selection.Registry,
		Outbox:   outboxSvc,
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	reconcileSvc, err := reconcile.NewService(reconcile.ServiceParams{
		Orders:      ordersRepo,
		Catalog:     catalogRepo,
		Providers:   providerRegistry,
		Metrics:     orderMetrics,
		Logger:      logg,
		Concurrency: cfg.Reconcile.Concurrency,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Auth:      authSvc,
		Checkout:  checkoutSvc,
		Payments:  paymentSvc,
		Orders:    ordersSvc,
		Coupons:   couponSvc,
		Dispatch:  dispatchSvc,
		Refunds:   refundSvc,
		Reconcile: reconcileSvc,
	}, nil
}
