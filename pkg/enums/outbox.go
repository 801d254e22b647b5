package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderPaid              OutboxEventType = "order_paid"
	EventOrderPaymentFailed     OutboxEventType = "order_payment_failed"
	EventOrderDispatchRequested OutboxEventType = "order_dispatch_requested"
	EventOrderRefunded          OutboxEventType = "order_refunded"
	EventOrderExpired           OutboxEventType = "order_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderDispatchRequested,
	EventOrderRefunded,
	EventOrderExpired,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// RequestsDispatch reports whether consumers should send the order to its provider.
func (e OutboxEventType) RequestsDispatch() bool {
	return e == EventOrderPaid || e == EventOrderDispatchRequested
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
