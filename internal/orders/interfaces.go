package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
)

// Repository defines persistence operations for order rows and their audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uint64) (*models.Order, error)
	ListByGroup(ctx context.Context, order *models.Order) ([]models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListDueForSync(ctx context.Context, afterID uint64, limit int) ([]models.Order, error)
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Update(ctx context.Context, id uint64, updates map[string]any) error
	UpdateMany(ctx context.Context, ids []uint64, updates map[string]any) error
	UpdateIfStatus(ctx context.Context, id uint64, expected enums.OrderStatus, updates map[string]any) (bool, error)
	Delete(ctx context.Context, id uint64) error
	HasPayment(ctx context.Context, orderIDs []uint64) (bool, error)
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}
