package cron

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
)

const (
	defaultPendingOrderTTL = 72 * time.Hour
	expiryBatchSize        = 200
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CheckoutExpiryJobParams configure the abandoned checkout sweep.
type CheckoutExpiryJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Orders orders.Repository
	Outbox outboxEmitter
	TTL    time.Duration
}

// NewCheckoutExpiryJob builds the job that cancels checkouts left unpaid
// for longer than TTL.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &checkoutExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		outbox: params.Outbox,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	orders orders.Repository
	outbox outboxEmitter
	ttl    time.Duration
	now    func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.ListAbandoned(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query abandoned orders: %w", err)
	}

	var errs error
	expired := 0
	for _, order := range stale {
		ok, err := j.expire(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %d: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(stale),
		"expired": expired,
	}), "checkout expiry loop complete")
	return errs
}

// expire cancels one order unless a payment or admin moved it first.
func (j *checkoutExpiryJob) expire(ctx context.Context, order models.Order) (bool, error) {
	applied := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.orders.WithTx(tx).UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{
			"status": enums.OrderStatusCanceled,
		})
		if err != nil || !ok {
			return err
		}
		applied = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(order.ID, 10),
			Actor:         "cron",
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				ExpiredAt:   j.now().UTC(),
			},
		})
	})
	return applied && err == nil, err
}
