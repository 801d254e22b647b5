package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/cron"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/internal/reconcile"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/migrate"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

const maintenanceLockTTL = 10 * time.Minute

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    cron.RedisLocks(redisClient, cfg.App.Env),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)

	syncer, err := reconcile.NewService(reconcile.ServiceParams{
		Orders:      ordersRepo,
		Catalog:     catalog.NewRepository(conn),
		Providers:   providers.NewRegistry(cfg.Provider.Timeout, logg),
		Metrics:     metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
		Concurrency: cfg.Reconcile.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	reconcileJob, err := cron.NewOrderReconcileJob(cron.OrderReconcileJobParams{
		Logger:    logg,
		Syncer:    syncer,
		BatchSize: cfg.Reconcile.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	expiryJob, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger: logg,
		DB:     dbClient,
		Orders: ordersRepo,
		Outbox: outbox.NewService(outboxRepo, logg),
		TTL:    cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(reconcileJob, cfg.Reconcile.Interval, cfg.Reconcile.LockTTL)
	registry.Register(retentionJob, cfg.Cron.MaintenanceInterval, maintenanceLockTTL)
	registry.Register(expiryJob, cfg.Cron.MaintenanceInterval, maintenanceLockTTL)
	return registry, nil
}
