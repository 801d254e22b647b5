// Package settings holds operator-tunable key/value settings such as the
// order number prefix, backed by the settings table with a Redis cache.
package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

const (
	KeyOrderPrefix = "order_prefix"
	KeyCurrency    = "currency"

	DefaultCacheTTL = 5 * time.Minute
	cacheScope      = "setting"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Invalidate(ctx context.Context, key string) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

type GormStore struct {
	db    *gorm.DB
	cache cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewGormStore builds the store. cache may be nil, in which case every Get
// reads the table.
func NewGormStore(db *gorm.DB, cache cache, ttl time.Duration, logg *logger.Logger) *GormStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &GormStore{db: db, cache: cache, ttl: ttl, logg: logg}
}

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, pkgerrors.New(pkgerrors.CodeValidation, "setting key required")
	}
	if s.cache != nil {
		value, err := s.cache.Get(ctx, s.cache.CacheKey(cacheScope, key))
		switch {
		case err == nil:
			return value, true, nil
		case !redis.IsNil(err):
			s.warn(ctx, key, "setting cache read failed", err)
		}
	}

	var row models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load setting")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.CacheKey(cacheScope, key), row.Value, s.ttl); err != nil {
			s.warn(ctx, key, "setting cache write failed", err)
		}
	}
	return row.Value, true, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "setting key required")
	}
	row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save setting")
	}
	return s.Invalidate(ctx, key)
}

func (s *GormStore) Invalidate(ctx context.Context, key string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, s.cache.CacheKey(cacheScope, key)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate setting cache")
	}
	return nil
}

// GetOr returns the stored value, or fallback when the key is unset or the
// store is unreachable.
func GetOr(ctx context.Context, store Store, key, fallback string) string {
	if store == nil {
		return fallback
	}
	value, ok, err := store.Get(ctx, key)
	if err != nil || !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (s *GormStore) warn(ctx context.Context, key, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"setting": key, "error": err.Error()})
	s.logg.Warn(ctx, msg)
}
