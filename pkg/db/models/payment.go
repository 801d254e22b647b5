package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// Payment is the single payment row of an order (group). OrderID is the first sibling.
type Payment struct {
	ID               uint64                `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID          uint64                `gorm:"column:order_id;not null;uniqueIndex" json:"order_id"`
	Provider         enums.PaymentProvider `gorm:"column:provider;not null" json:"provider"`
	ProviderIntentID *string               `gorm:"column:provider_intent_id" json:"provider_intent_id,omitempty"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string                `gorm:"column:currency;not null;default:'usd'" json:"currency"`
	Status           enums.PaymentStatus   `gorm:"column:status;not null;default:'pending'" json:"status"`
	Metadata         json.RawMessage       `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// IntentID returns the provider intent id or "".
func (p Payment) IntentID() string {
	if p.ProviderIntentID == nil {
		return ""
	}
	return *p.ProviderIntentID
}
