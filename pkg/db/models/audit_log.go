package models

import (
	"encoding/json"
	"time"
)

// AuditLog records a manual admin change with before/after snapshots.
type AuditLog struct {
	ID         uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Actor      string          `gorm:"column:actor;not null" json:"actor"`
	Action     string          `gorm:"column:action;not null" json:"action"`
	EntityType string          `gorm:"column:entity_type;not null" json:"entity_type"`
	EntityID   string          `gorm:"column:entity_id;not null" json:"entity_id"`
	Before     json.RawMessage `gorm:"column:before;type:jsonb" json:"before,omitempty"`
	After      json.RawMessage `gorm:"column:after;type:jsonb" json:"after,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
