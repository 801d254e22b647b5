package orders

import (
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// ListFilters narrows the admin order list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	OrderNumber   string
}

// OrderList wraps one page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderDetail is an order with its group siblings.
type OrderDetail struct {
	Order    models.Order   `json:"order"`
	Siblings []models.Order `json:"siblings,omitempty"`
}

// PatchInput is the manual admin edit. Nil fields are left unchanged.
type PatchInput struct {
	Status       *enums.OrderStatus
	StartCount   *int
	CurrentCount *int
}

func (p PatchInput) empty() bool {
	return p.Status == nil && p.StartCount == nil && p.CurrentCount == nil
}

// SyncStatuses are the states reconciliation keeps polling.
var SyncStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusProcessing,
	enums.OrderStatusInProgress,
}
