package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// Provider is a fulfillment provider. APIKey never leaves the process.
type Provider struct {
	ID        uint64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string             `gorm:"column:name;not null" json:"name"`
	Kind      enums.ProviderKind `gorm:"column:kind;not null" json:"kind"`
	BaseURL   string             `gorm:"column:base_url;not null" json:"base_url"`
	APIKey    string             `gorm:"column:api_key;not null" json:"-"`
	Active    bool               `gorm:"column:active;not null" json:"active"`
	Settings  json.RawMessage    `gorm:"column:settings;type:jsonb" json:"settings,omitempty"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
