package models

import (
	"time"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

// Service is a catalog entry ("YouTube subscribers") that packages hang off.
type Service struct {
	ID         uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name       string           `gorm:"column:name;not null" json:"name"`
	Platform   string           `gorm:"column:platform;not null" json:"platform"`
	MetricType enums.MetricType `gorm:"column:metric_type;not null" json:"metric_type"`
	Active     bool             `gorm:"column:active;not null" json:"active"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
