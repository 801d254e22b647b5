package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
)

// ErrNotConfigured marks an order whose package has no provider mapping.
// It is a configuration problem, never a transport failure.
var ErrNotConfigured = pkgerrors.New(pkgerrors.CodeConfiguration, "package has no provider mapping")

type Outcome string

const (
	OutcomeDispatched    Outcome = "dispatched"
	OutcomeNotConfigured Outcome = "not_configured"
	OutcomeFailed        Outcome = "failed"
)

// Result is the explicit outcome of one Send.
type Result struct {
	Outcome    Outcome
	ExternalID string
	Err        error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type providerFactory interface {
	For(provider models.Provider) (providers.Provider, error)
}

type Service interface {
	Send(ctx context.Context, orderID uint64) (Result, error)
	Resend(ctx context.Context, actor string, orderID uint64) (*models.Order, error)
	ProviderBalance(ctx context.Context, providerID uint64) (providers.Balance, error)
	ProviderServices(ctx context.Context, providerID uint64) ([]providers.RemoteService, error)
}

type ServiceParams struct {
	Tx        txRunner
	Orders    orders.Repository
	Catalog   catalog.Repository
	Providers providerFactory
	Outbox    outboxPublisher
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

type service struct {
	tx        txRunner
	orders    orders.Repository
	catalog   catalog.Repository
	providers providerFactory
	outbox    outboxPublisher
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        params.Tx,
		orders:    params.Orders,
		catalog:   params.Catalog,
		providers: params.Providers,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// Send places the order with its package's provider. The previous external
// id is cleared before the call, so a crash in between leaves the order
// undispatched rather than pointing at a stale provider order.
func (s *service) Send(ctx context.Context, orderID uint64) (Result, error) {
	ctx = s.logg.WithOrderID(ctx, orderID)
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.fail(ctx, orders.MapLoadError(err))
	}
	if err := ensureDispatchable(order); err != nil {
		return s.fail(ctx, err)
	}

	pkg, err := s.catalog.FindPackage(ctx, order.PackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.notConfigured(ctx, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "order package missing"))
		}
		return s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package"))
	}
	if pkg.ProviderID == nil || pkg.ProviderServiceID == nil || *pkg.ProviderServiceID == "" {
		return s.notConfigured(ctx, ErrNotConfigured)
	}

	provider, err := s.catalog.FindProvider(ctx, *pkg.ProviderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.notConfigured(ctx, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "provider missing"))
		}
		return s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider"))
	}
	if !provider.Active {
		return s.notConfigured(ctx, pkgerrors.Newf(pkgerrors.CodeConfiguration, "provider %d is inactive", provider.ID))
	}
	adapter, err := s.providers.For(*provider)
	if err != nil {
		return s.notConfigured(ctx, err)
	}

	if err := s.orders.Update(ctx, order.ID, map[string]any{"provider_order_id": nil}); err != nil {
		return s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear provider order id"))
	}

	created, err := adapter.CreateOrder(ctx, *pkg.ProviderServiceID, order.TargetLink, order.Quantity)
	if err != nil {
		return s.fail(ctx, err)
	}

	updates := map[string]any{
		"provider_order_id": created.ExternalID,
		"provider_response": []byte(created.Raw),
	}
	if err := s.orders.Update(ctx, order.ID, updates); err != nil {
		return s.fail(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save provider order id"))
	}

	s.metrics.IncDispatch(string(OutcomeDispatched))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_id":       provider.ID,
		"provider_order_id": created.ExternalID,
	}), "order dispatched")
	return Result{Outcome: OutcomeDispatched, ExternalID: created.ExternalID}, nil
}

func (s *service) notConfigured(ctx context.Context, err error) (Result, error) {
	s.metrics.IncDispatch(string(OutcomeNotConfigured))
	s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "order not dispatchable: provider not configured")
	return Result{Outcome: OutcomeNotConfigured, Err: err}, err
}

func (s *service) fail(ctx context.Context, err error) (Result, error) {
	s.metrics.IncDispatch(string(OutcomeFailed))
	s.logg.Error(ctx, "order dispatch failed", err)
	return Result{Outcome: OutcomeFailed, Err: err}, err
}

// Resend clears the external id, moves the order back to processing and
// queues a new dispatch through the outbox.
func (s *service) Resend(ctx context.Context, actor string, orderID uint64) (*models.Order, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return orders.MapLoadError(err)
		}
		if err := ensureDispatchable(order); err != nil {
			return err
		}
		updates := map[string]any{
			"provider_order_id": nil,
			"status":            enums.OrderStatusProcessing,
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset order for resend")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderDispatchRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(order.ID, 10),
			Actor:         actor,
			Data: payloads.OrderDispatchRequestedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				RequestedBy: actor,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue resend")
		}
		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithActor(s.logg.WithOrderID(ctx, orderID), actor), "order resend requested")
	return updated, nil
}

func (s *service) ProviderBalance(ctx context.Context, providerID uint64) (providers.Balance, error) {
	adapter, err := s.adapterFor(ctx, providerID)
	if err != nil {
		return providers.Balance{}, err
	}
	return adapter.GetBalance(ctx)
}

func (s *service) ProviderServices(ctx context.Context, providerID uint64) ([]providers.RemoteService, error) {
	adapter, err := s.adapterFor(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return adapter.ListServices(ctx)
}

func (s *service) adapterFor(ctx context.Context, providerID uint64) (providers.Provider, error) {
	provider, err := s.catalog.FindProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	return s.providers.For(*provider)
}

// ensureDispatchable refuses unpaid and closed orders.
func ensureDispatchable(order *models.Order) error {
	if order.PaymentStatus != enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
	}
	switch order.Status {
	case enums.OrderStatusCanceled, enums.OrderStatusRefunded:
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
	}
	return nil
}
