package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
)

const (
	auditEntityOrder = "order"
	auditActionPatch = "order.patch"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the admin order operations.
type Service interface {
	Get(ctx context.Context, id uint64) (*OrderDetail, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	Patch(ctx context.Context, actor string, id uint64, input PatchInput) (*models.Order, error)
	Delete(ctx context.Context, id uint64) error
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the admin orders service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, id uint64) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	detail := &OrderDetail{Order: *order}
	if order.GroupID != nil {
		siblings, err := s.repo.ListByGroup(ctx, order)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order group")
		}
		detail.Siblings = siblings
	}
	return detail, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	list, err := s.repo.List(ctx, filters, params)
	if err != nil {
		if _, cursorErr := pagination.ParseCursor(params.Cursor); cursorErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, cursorErr, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// Patch applies a manual edit and records an audit row in the same
// transaction. Moving to completed stamps completed_at.
func (s *service) Patch(ctx context.Context, actor string, id uint64, input PatchInput) (*models.Order, error) {
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"allowed": enums.OrderStatuses()})
	}
	if input.StartCount != nil && *input.StartCount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start_count cannot be negative")
	}
	if input.CurrentCount != nil && *input.CurrentCount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "current_count cannot be negative")
	}
	if actor == "" {
		actor = "admin"
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}

		updates := map[string]any{}
		if input.Status != nil {
			updates["status"] = *input.Status
			if *input.Status == enums.OrderStatusCompleted && before.CompletedAt == nil {
				updates["completed_at"] = s.now().UTC()
			}
		}
		if input.StartCount != nil {
			updates["start_count"] = *input.StartCount
		}
		if input.CurrentCount != nil {
			updates["current_count"] = *input.CurrentCount
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		after, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		entry, err := buildAuditLog(actor, auditActionPatch, before, after)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit log")
		}
		if err := repo.CreateAuditLog(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithActor(s.logg.WithOrderID(ctx, id), actor)
	s.logg.Info(s.logg.WithField(logCtx, "status", updated.Status), "order patched")
	return updated, nil
}

// Delete removes an order that never reached a payment or a provider.
func (s *service) Delete(ctx context.Context, id uint64) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}
		if order.ExternalID() != "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was already sent to a provider")
		}
		group, err := repo.ListByGroup(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order group")
		}
		paid, err := repo.HasPayment(ctx, IDs(group))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payments")
		}
		if paid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has a payment record")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return mapLoadError(err)
		}
		return nil
	})
}

func buildAuditLog(actor, action string, before, after *models.Order) (*models.AuditLog, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	return &models.AuditLog{
		Actor:      actor,
		Action:     action,
		EntityType: auditEntityOrder,
		EntityID:   strconv.FormatUint(after.ID, 10),
		Before:     beforeJSON,
		After:      afterJSON,
	}, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

// MapLoadError converts a repository lookup error into a typed error.
func MapLoadError(err error) error {
	return mapLoadError(err)
}
