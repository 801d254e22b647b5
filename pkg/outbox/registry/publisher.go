package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	topic := cfg.OrdersTopic
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} },
		},
		{
			EventType:      enums.EventOrderPaid,
			AggregateType:  enums.AggregateOrder,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OrderPaidEvent{} },
		},
		{
			EventType:      enums.EventOrderPaymentFailed,
			AggregateType:  enums.AggregatePayment,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OrderPaymentFailedEvent{} },
		},
		{
			EventType:      enums.EventOrderDispatchRequested,
			AggregateType:  enums.AggregateOrder,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OrderDispatchRequestedEvent{} },
		},
		{
			EventType:      enums.EventOrderRefunded,
			AggregateType:  enums.AggregatePayment,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.OrderRefundedEvent{} },
		},
	} {
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	return decode(desc, event.EventType, event.Payload)
}

// Decode resolves a payload received from the queue, where only the event
// type travels next to the envelope.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, raw []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", eventType))
	}
	return decode(desc, eventType, raw)
}

func decode(desc EventDescriptor, eventType enums.OutboxEventType, raw []byte) (*ResolvedEvent, error) {
	envelope, err := outbox.DecodeEnvelope(raw, "")
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", eventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
