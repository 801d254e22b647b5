package payments

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uint64) (*models.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID uint64) (*models.Payment, error)
	FindByIntent(ctx context.Context, provider enums.PaymentProvider, intentID string) (*models.Payment, error)
	Upsert(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, id uint64, updates map[string]any) error
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

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uint64) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uint64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntent(ctx context.Context, provider enums.PaymentProvider, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_intent_id = ?", provider, intentID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Upsert keeps a single payment row per order, replacing the intent,
// provider, amount and status of an existing row.
func (r *repository) Upsert(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "provider_intent_id", "amount", "currency", "status", "metadata", "updated_at",
		}),
	}).Create(payment).Error
	if err != nil {
		return err
	}
	stored, err := r.FindByOrderID(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	*payment = *stored
	return nil
}

func (r *repository) Update(ctx context.Context, id uint64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
