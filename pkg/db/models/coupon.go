package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// Coupon is a discount code. UsedCount never exceeds UsageLimit when a limit is set.
type Coupon struct {
	ID           uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code         string              `gorm:"column:code;not null;uniqueIndex" json:"code"`
	DiscountType enums.DiscountType  `gorm:"column:discount_type;not null" json:"discount_type"`
	Value        decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null" json:"value"`
	MinOrder     decimal.NullDecimal `gorm:"column:min_order;type:numeric(12,2)" json:"min_order"`
	MaxDiscount  decimal.NullDecimal `gorm:"column:max_discount;type:numeric(12,2)" json:"max_discount"`
	UsageLimit   *int                `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	UsedCount    int                 `gorm:"column:used_count;not null;default:0" json:"used_count"`
	StartsAt     *time.Time          `gorm:"column:starts_at" json:"starts_at,omitempty"`
	ExpiresAt    *time.Time          `gorm:"column:expires_at" json:"expires_at,omitempty"`
	Active       bool                `gorm:"column:active;not null" json:"active"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
