package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted once per checkout, covering every sibling.
type OrderCreatedEvent struct {
	OrderNumber string     `json:"order_number"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	OrderIDs    []uint64   `json:"order_ids"`
}

// OrderPaidEvent queues a single order for provider dispatch after its
// payment was confirmed.
type OrderPaidEvent struct {
	OrderID     uint64     `json:"order_id"`
	OrderNumber string     `json:"order_number"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	PaymentID   uint64     `json:"payment_id"`
}

// OrderPaymentFailedEvent records a failed charge for an order.
type OrderPaymentFailedEvent struct {
	OrderID   uint64 `json:"order_id"`
	PaymentID uint64 `json:"payment_id"`
}

// OrderDispatchRequestedEvent is emitted when an admin asks for a resend.
type OrderDispatchRequestedEvent struct {
	OrderID     uint64 `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// OrderRefundedEvent is emitted after the gateway accepted a refund.
type OrderRefundedEvent struct {
	OrderID   uint64 `json:"order_id"`
	PaymentID uint64 `json:"payment_id"`
}

// OrderExpiredEvent is emitted when an unpaid checkout is canceled by the
// expiry job.
type OrderExpiredEvent struct {
	OrderID     uint64    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// DispatchTarget is implemented by payloads that carry an order to send.
type DispatchTarget interface {
	DispatchOrderID() uint64
}

func (e OrderPaidEvent) DispatchOrderID() uint64              { return e.OrderID }
func (e OrderDispatchRequestedEvent) DispatchOrderID() uint64 { return e.OrderID }
