package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/types"
)

// Order is one fulfillment row. Siblings of a multi-link checkout share
// OrderNumber and GroupID and differ by SiblingIndex.
type Order struct {
	ID               uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderNumber      string              `gorm:"column:order_number;not null" json:"order_number"`
	SiblingIndex     int                 `gorm:"column:sibling_index;not null;default:0" json:"sibling_index"`
	GroupID          *uuid.UUID          `gorm:"column:group_id;type:uuid" json:"group_id,omitempty"`
	PackageID        uint64              `gorm:"column:package_id;not null" json:"package_id"`
	UserID           *uint64             `gorm:"column:user_id" json:"user_id,omitempty"`
	GuestEmail       *string             `gorm:"column:guest_email" json:"guest_email,omitempty"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Discount         decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0" json:"discount"`
	CouponID         *uint64             `gorm:"column:coupon_id" json:"coupon_id,omitempty"`
	TargetLink       string              `gorm:"column:target_link;not null" json:"target_link"`
	TargetLinks      types.TargetLinks   `gorm:"column:target_links;type:jsonb;serializer:json" json:"target_links"`
	Quantity         int                 `gorm:"column:quantity;not null" json:"quantity"`
	StartCount       int                 `gorm:"column:start_count;not null;default:0" json:"start_count"`
	CurrentCount     int                 `gorm:"column:current_count;not null;default:0" json:"current_count"`
	ProviderOrderID  *string             `gorm:"column:provider_order_id" json:"provider_order_id,omitempty"`
	ProviderResponse json.RawMessage     `gorm:"column:provider_response;type:jsonb" json:"provider_response,omitempty"`
	Status           enums.OrderStatus   `gorm:"column:status;not null;default:'pending'" json:"status"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'" json:"payment_status"`
	CompletedAt      *time.Time          `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// ExternalID returns the provider order id or "" when the order was never dispatched.
func (o Order) ExternalID() string {
	if o.ProviderOrderID == nil {
		return ""
	}
	return *o.ProviderOrderID
}
