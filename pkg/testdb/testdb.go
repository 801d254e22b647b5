// Package testdb opens throwaway SQLite databases carrying the storefront schema.
package testdb

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Uint64

var schema = []string{
	`CREATE TABLE providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		base_url TEXT NOT NULL,
		api_key TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		settings TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE services (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		platform TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		min_quantity INTEGER NOT NULL,
		max_quantity INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		provider_id INTEGER,
		provider_service_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE coupons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE COLLATE NOCASE,
		discount_type TEXT NOT NULL,
		value TEXT NOT NULL,
		min_order TEXT,
		max_discount TEXT,
		usage_limit INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		starts_at DATETIME,
		expires_at DATETIME,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		sibling_index INTEGER NOT NULL DEFAULT 0,
		group_id TEXT,
		package_id INTEGER NOT NULL,
		user_id INTEGER,
		guest_email TEXT,
		amount TEXT NOT NULL,
		discount TEXT NOT NULL DEFAULT '0',
		coupon_id INTEGER,
		target_link TEXT NOT NULL,
		target_links TEXT,
		quantity INTEGER NOT NULL,
		start_count INTEGER NOT NULL DEFAULT 0,
		current_count INTEGER NOT NULL DEFAULT 0,
		provider_order_id TEXT,
		provider_response TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (order_number, sibling_index)
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		provider_intent_id TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'usd',
		status TEXT NOT NULL DEFAULT 'pending',
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		before TEXT,
		after TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	)`,
}

// Open returns a private in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// SQLite serializes writers; one connection keeps transactions deterministic.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
