package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/smm-storefront/internal/analytics"
	"github.com/angelmondragon/smm-storefront/pkg/bigquery"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/idempotency"
	"github.com/angelmondragon/smm-storefront/pkg/pubsub"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.PubSub.AnalyticsSubscription == "" {
		requireResource(ctx, logg, "analytics subscription", errors.New("SMM_PUBSUB_ANALYTICS_SUBSCRIPTION is not set"))
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := analytics.NewConsumer(pubsubClient.AnalyticsSubscription(), bqClient, bqClient.Table(), manager, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
