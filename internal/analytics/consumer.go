package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
)

const consumerName = "analytics"

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer copies every order lifecycle event into BigQuery.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	client       rowInserter
	table        string
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, client rowInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("bigquery table name required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{
		subscription: subscription,
		client:       client,
		table:        strings.TrimSpace(table),
		manager:      manager,
		logg:         logg,
	}, nil
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("analytics subscription is required")
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if err := c.Process(innerCtx, msg.Attributes, msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process writes one message. A returned error means the message should be
// redelivered; malformed messages are logged and dropped.
func (c *Consumer) Process(ctx context.Context, attributes map[string]string, data []byte) error {
	eventType := enums.OutboxEventType(strings.TrimSpace(attributes["event_type"]))
	logCtx := c.logg.WithField(ctx, "event_type", eventType)
	if !eventType.IsValid() {
		c.logg.Info(logCtx, "event not handled by analytics consumer")
		return nil
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return nil
	}
	row, err := BuildRow(eventType, attributes, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build order event row", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", row.EventID)

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, row.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return err
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	if err := c.client.InsertRows(logCtx, c.table, []any{row}); err != nil {
		c.logg.Error(logCtx, "failed to insert order event row", err)
		if delErr := c.manager.Delete(logCtx, consumerName, row.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
		return err
	}
	c.logg.Info(logCtx, "order event ingested")
	return nil
}
