// Package catalog reads the services, packages and providers that checkout,
// dispatch and the admin surface price and route against.
package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPackage(ctx context.Context, id uint64) (*models.Package, error)
	FindProvider(ctx context.Context, id uint64) (*models.Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]models.Provider, error)
	CreateService(ctx context.Context, service *models.Service) error
	CreatePackage(ctx context.Context, pkg *models.Package) error
	CreateProvider(ctx context.Context, provider *models.Provider) error
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

// FindPackage loads the package together with its service so callers can
// read the metric type.
func (r *repository) FindPackage(ctx context.Context, id uint64) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).
		Preload("Service").
		First(&pkg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) FindProvider(ctx context.Context, id uint64) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) ListProviders(ctx context.Context, activeOnly bool) ([]models.Provider, error) {
	query := r.db.WithContext(ctx).Model(&models.Provider{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.Provider
	err := query.Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) CreateService(ctx context.Context, service *models.Service) error {
	return r.db.WithContext(ctx).Create(service).Error
}

func (r *repository) CreatePackage(ctx context.Context, pkg *models.Package) error {
	return r.db.WithContext(ctx).Omit("Service").Create(pkg).Error
}

func (r *repository) CreateProvider(ctx context.Context, provider *models.Provider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}
