package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

const consumerName = "dispatch"

type sender interface {
	Send(ctx context.Context, orderID uint64) (Result, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer feeds order_paid and order_dispatch_requested events from
// Pub/Sub into Send.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	sender       sender
	manager      idempotencyChecker
	locks        *redis.Client
	lockTTL      time.Duration
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, sender sender, manager idempotencyChecker, locks *redis.Client, lockTTL time.Duration, logg *logger.Logger) (*Consumer, error) {
	if sender == nil {
		return nil, errors.New("dispatch sender is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if locks == nil {
		return nil, errors.New("redis client is required for dispatch locks")
	}
	if lockTTL <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		sender:       sender,
		manager:      manager,
		locks:        locks,
		lockTTL:      lockTTL,
		logg:         logg,
	}, nil
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("dispatch subscription is required")
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	eventType := enums.OutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !eventType.RequestsDispatch() {
		return processResult{}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data, msg.Attributes["event_id"])
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{}
	}
	eventID := envelope.EventID
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	target, err := decodeTarget(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse dispatch payload", err)
		return processResult{}
	}
	orderID := target.DispatchOrderID()
	logCtx = c.logg.WithOrderID(logCtx, orderID)

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	lock, err := redis.NewLock(c.locks, "dispatch:"+strconv.FormatUint(orderID, 10), c.lockTTL)
	if err != nil {
		return c.retry(logCtx, eventID, err)
	}
	acquired, err := lock.Acquire(logCtx)
	if err != nil {
		return c.retry(logCtx, eventID, err)
	}
	if !acquired {
		return c.retry(logCtx, eventID, errors.New("order dispatch already in progress"))
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(logCtx)); err != nil {
			c.logg.Error(logCtx, "failed to release dispatch lock", err)
		}
	}()

	result, err := c.sender.Send(logCtx, orderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) || !pkgerrors.IsRetryable(err) {
			c.logg.Warn(c.logg.WithFields(logCtx, map[string]any{
				"outcome": result.Outcome,
				"error":   err.Error(),
			}), "dispatch not retried")
			return processResult{}
		}
		return c.retry(logCtx, eventID, err)
	}
	return processResult{}
}

// retry forgets the event so the redelivery is processed.
func (c *Consumer) retry(ctx context.Context, eventID string, cause error) processResult {
	c.logg.Error(ctx, "dispatch will be retried", cause)
	if err := c.manager.Delete(ctx, consumerName, eventID); err != nil {
		c.logg.Error(ctx, "failed to release idempotency key", err)
	}
	return processResult{nack: true}
}

func decodeTarget(eventType enums.OutboxEventType, data json.RawMessage) (payloads.DispatchTarget, error) {
	var target payloads.DispatchTarget
	switch eventType {
	case enums.EventOrderPaid:
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		target = payload
	case enums.EventOrderDispatchRequested:
		var payload payloads.OrderDispatchRequestedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		target = payload
	default:
		return nil, fmt.Errorf("event %s does not request dispatch", eventType)
	}
	if target.DispatchOrderID() == 0 {
		return nil, errors.New("order id missing")
	}
	return target, nil
}
