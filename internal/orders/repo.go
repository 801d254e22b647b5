package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByGroup returns every sibling of order ordered by sibling index. A
// single-link order is its own group.
func (r *repository) ListByGroup(ctx context.Context, order *models.Order) ([]models.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	if order.GroupID == nil {
		return []models.Order{*order}, nil
	}
	var siblings []models.Order
	err := r.db.WithContext(ctx).
		Where("group_id = ?", *order.GroupID).
		Order("sibling_index ASC").
		Find(&siblings).Error
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return []models.Order{*order}, nil
	}
	return siblings, nil
}

// List pages newest first; the cursor is the last id of the previous page.
func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if number := strings.TrimSpace(filters.OrderNumber); number != "" {
		query = query.Where("order_number = ?", strings.ToUpper(number))
	}

	var rows []models.Order
	if err := query.Order("id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: rows}
	if len(rows) > limit {
		list.Orders = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(rows[limit-1].ID)
	}
	return list, nil
}

// ListDueForSync returns dispatched orders still in flight, in id order,
// starting after afterID.
func (r *repository) ListDueForSync(ctx context.Context, afterID uint64, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("provider_order_id IS NOT NULL AND provider_order_id <> ''").
		Where("status IN ?", SyncStatuses).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListAbandoned returns pending orders created before cutoff whose payment
// never completed.
func (r *repository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Where("created_at < ?", cutoff.UTC()).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uint64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateMany(ctx context.Context, ids []uint64, updates map[string]any) error {
	if len(ids) == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id IN ?", ids).Updates(updates).Error
}

// UpdateIfStatus applies updates only while the row still has the expected
// status. It reports false when a concurrent writer moved the order first.
func (r *repository) UpdateIfStatus(ctx context.Context, id uint64, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&models.Order{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HasPayment reports whether any of orderIDs owns a payment row.
func (r *repository) HasPayment(ctx context.Context, orderIDs []uint64) (bool, error) {
	if len(orderIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("order_id IN ?", orderIDs).Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// IDs returns the primary keys of orders in order.
func IDs(orders []models.Order) []uint64 {
	out := make([]uint64, 0, len(orders))
	for _, order := range orders {
		out = append(out, order.ID)
	}
	return out
}
