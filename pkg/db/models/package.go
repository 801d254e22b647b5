package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package is a sellable unit. Orders copy its price at creation time.
type Package struct {
	ID                uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ServiceID         uint64          `gorm:"column:service_id;not null" json:"service_id"`
	Name              string          `gorm:"column:name;not null" json:"name"`
	Quantity          int             `gorm:"column:quantity;not null" json:"quantity"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	MinQuantity       int             `gorm:"column:min_quantity;not null" json:"min_quantity"`
	MaxQuantity       int             `gorm:"column:max_quantity;not null" json:"max_quantity"`
	Active            bool            `gorm:"column:active;not null" json:"active"`
	ProviderID        *uint64         `gorm:"column:provider_id" json:"provider_id,omitempty"`
	ProviderServiceID *string         `gorm:"column:provider_service_id" json:"provider_service_id,omitempty"`
	Service           *Service        `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasProviderLink reports whether the package can be dispatched at all.
func (p Package) HasProviderLink() bool {
	return p.ProviderID != nil && p.ProviderServiceID != nil && *p.ProviderServiceID != ""
}
