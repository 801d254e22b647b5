package coupons

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uint64) (*models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) error
	IncrementUsage(ctx context.Context, couponID uint64) error
	ListCodes(ctx context.Context) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByCode matches codes case-insensitively.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("LOWER(code) = ?", NormalizeCode(code)).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

// IncrementUsage must run inside the checkout transaction. The row is
// re-read under FOR UPDATE so two checkouts cannot both take the last use.
func (r *repository) IncrementUsage(ctx context.Context, couponID uint64) error {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&coupon, "id = ?", couponID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock coupon")
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment coupon usage")
	}
	return nil
}

func (r *repository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).Model(&models.Coupon{}).Pluck("code", &codes).Error
	return codes, err
}

// NormalizeCode is the canonical lookup form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
