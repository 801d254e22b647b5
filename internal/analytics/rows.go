package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
)

// OrderEventRow is one row of the order_events warehouse table.
type OrderEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	AggregateType string              `bigquery:"aggregate_type"`
	AggregateID   string              `bigquery:"aggregate_id"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	OrderID       bigquery.NullInt64  `bigquery:"order_id"`
	OrderNumber   bigquery.NullString `bigquery:"order_number"`
	GroupID       bigquery.NullString `bigquery:"group_id"`
	OrderCount    int64               `bigquery:"order_count"`
	PaymentID     bigquery.NullInt64  `bigquery:"payment_id"`
	Actor         bigquery.NullString `bigquery:"actor"`
	Payload       bigquery.NullJSON   `bigquery:"payload"`
}

// eventFields is the union of the order payload keys the warehouse keeps
// as columns.
type eventFields struct {
	OrderID     uint64     `json:"order_id"`
	OrderIDs    []uint64   `json:"order_ids"`
	OrderNumber string     `json:"order_number"`
	GroupID     *uuid.UUID `json:"group_id"`
	PaymentID   uint64     `json:"payment_id"`
}

// BuildRow flattens a published outbox envelope into a warehouse row.
// attributes are the Pub/Sub message attributes set by the publisher.
func BuildRow(eventType enums.OutboxEventType, attributes map[string]string, envelope outbox.PayloadEnvelope) (*OrderEventRow, error) {
	if strings.TrimSpace(envelope.EventID) == "" {
		return nil, fmt.Errorf("event id missing")
	}
	var fields eventFields
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &fields); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}

	row := &OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(eventType),
		AggregateType: attributes["aggregate_type"],
		AggregateID:   attributes["aggregate_id"],
		OccurredAt:    envelope.OccurredAt.UTC(),
		OrderCount:    1,
	}

	orderID := fields.OrderID
	if len(fields.OrderIDs) > 0 {
		row.OrderCount = int64(len(fields.OrderIDs))
		if orderID == 0 {
			orderID = fields.OrderIDs[0]
		}
	}
	if orderID != 0 {
		row.OrderID = bigquery.NullInt64{Int64: int64(orderID), Valid: true}
	}
	if fields.OrderNumber != "" {
		row.OrderNumber = bigquery.NullString{StringVal: fields.OrderNumber, Valid: true}
	}
	if fields.GroupID != nil {
		row.GroupID = bigquery.NullString{StringVal: fields.GroupID.String(), Valid: true}
	}
	if fields.PaymentID != 0 {
		row.PaymentID = bigquery.NullInt64{Int64: int64(fields.PaymentID), Valid: true}
	}
	if envelope.Actor != "" {
		row.Actor = bigquery.NullString{StringVal: envelope.Actor, Valid: true}
	}
	if len(envelope.Data) > 0 {
		row.Payload = bigquery.NullJSON{JSONVal: string(envelope.Data), Valid: true}
	}
	return row, nil
}
