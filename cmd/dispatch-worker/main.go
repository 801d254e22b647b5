package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/dispatch"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db"
	"github.com/angelmondragon/smm-storefront/pkg/instance"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/migrate"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/idempotency"
	"github.com/angelmondragon/smm-storefront/pkg/pubsub"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	conn := dbClient.DB()
	sender, err := dispatch.NewService(dispatch.ServiceParams{
		Tx:        dbClient,
		Orders:    orders.NewRepository(conn),
		Catalog:   catalog.NewRepository(conn),
		Providers: providers.NewRegistry(cfg.Provider.Timeout, logg),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:   metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	requireResource(ctx, logg, "dispatch service", err)

	consumer, err := dispatch.NewConsumer(subscription, sender, manager, redisClient, cfg.Dispatch.LockTTL, logg)
	requireResource(ctx, logg, "dispatch consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID("dispatch-worker-0"),
	})
	logg.Info(runCtx, "dispatch worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "dispatch worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "dispatch worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
