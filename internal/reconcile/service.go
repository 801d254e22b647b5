package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
)

const (
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

// Outcome describes what one sync did. It exists for metrics and tests;
// callers never need to act on it.
type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomeTransitioned  Outcome = "transitioned"
	OutcomeRefreshed     Outcome = "refreshed"
	OutcomeUnknownStatus Outcome = "unknown_status"
	OutcomeConflict      Outcome = "conflict"
	OutcomeFailed        Outcome = "failed"
)

// Summary totals one SyncDue pass.
type Summary struct {
	Scanned     int
	Transitions int
	Failed      int
}

type providerFactory interface {
	For(provider models.Provider) (providers.Provider, error)
}

type ServiceParams struct {
	Orders      orders.Repository
	Catalog     catalog.Repository
	Providers   providerFactory
	Metrics     *metrics.OrderMetrics
	Logger      *logger.Logger
	Concurrency int
	Now         func() time.Time
}

type Service struct {
	orders      orders.Repository
	catalog     catalog.Repository
	providers   providerFactory
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	concurrency int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		orders:      params.Orders,
		catalog:     params.Catalog,
		providers:   params.Providers,
		metrics:     params.Metrics,
		logg:        params.Logger,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// Sync pulls the provider's view of order and applies it in a single
// UPDATE. Failures are logged and swallowed.
func (s *Service) Sync(ctx context.Context, order models.Order) Outcome {
	outcome, err := s.sync(ctx, order)
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID), "order sync failed", err)
	}
	return outcome
}

// SyncByID syncs one order and returns its stored state afterwards.
func (s *Service) SyncByID(ctx context.Context, orderID uint64) (*models.Order, Outcome, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, OutcomeFailed, orders.MapLoadError(err)
	}
	outcome := s.Sync(ctx, *order)
	updated, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, outcome, orders.MapLoadError(err)
	}
	return updated, outcome, nil
}

// SyncDue walks every order that has an external id and is still open,
// batchSize rows at a time. Per-order failures are combined into the
// returned error after the pass completes.
func (s *Service) SyncDue(ctx context.Context, batchSize int) (Summary, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	var (
		summary Summary
		mu      sync.Mutex
		errs    error
		afterID uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		batch, err := s.orders.ListDueForSync(ctx, afterID, batchSize)
		if err != nil {
			return summary, multierr.Append(errs, fmt.Errorf("list orders due for sync: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(s.concurrency)
		for i := range batch {
			order := batch[i]
			g.Go(func() error {
				outcome, err := s.sync(ctx, order)
				mu.Lock()
				defer mu.Unlock()
				summary.Scanned++
				if outcome == OutcomeTransitioned {
					summary.Transitions++
				}
				if err != nil {
					summary.Failed++
					errs = multierr.Append(errs, fmt.Errorf("order %d: %w", order.ID, err))
				}
				return nil
			})
		}
		_ = g.Wait()

		afterID = batch[len(batch)-1].ID
		if len(batch) < batchSize {
			break
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"scanned":     summary.Scanned,
		"transitions": summary.Transitions,
		"failed":      summary.Failed,
	}), "order sync pass complete")
	return summary, errs
}

func (s *Service) sync(ctx context.Context, order models.Order) (outcome Outcome, err error) {
	defer func() { s.metrics.IncSync(string(outcome)) }()

	externalID := order.ExternalID()
	if externalID == "" {
		return OutcomeSkipped, nil
	}
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID), map[string]any{
		"provider_order_id": externalID,
	})

	adapter, err := s.adapterFor(ctx, order)
	if err != nil {
		return OutcomeFailed, err
	}
	status, err := adapter.GetStatus(ctx, externalID)
	if err != nil {
		return OutcomeFailed, err
	}

	updates := map[string]any{}
	if len(status.Raw) > 0 {
		updates["provider_response"] = []byte(status.Raw)
	}

	outcome = OutcomeRefreshed
	mapped, known := MapStatus(status.Status)
	switch {
	case !known:
		outcome = OutcomeUnknownStatus
		s.logg.Warn(s.logg.WithField(ctx, "provider_status", status.Status), "unknown provider status; keeping current status")
	case locallyFinal(order.Status):
		if mapped != order.Status {
			s.logg.Info(s.logg.WithField(ctx, "provider_status", status.Status), "order closed locally; keeping status")
		}
	case mapped != order.Status:
		updates["status"] = mapped
		outcome = OutcomeTransitioned
	}
	if known && !locallyFinal(order.Status) && mapped == enums.OrderStatusCompleted && order.CompletedAt == nil {
		updates["completed_at"] = s.now().UTC()
	}

	startCount := order.StartCount
	if status.StartCount != nil {
		startCount = *status.StartCount
		updates["start_count"] = startCount
	}
	if status.Remains != nil {
		updates["current_count"] = startCount + (order.Quantity - *status.Remains)
	}

	applied, err := s.orders.UpdateIfStatus(ctx, order.ID, order.Status, updates)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("persist sync: %w", err)
	}
	if !applied {
		s.logg.Info(ctx, "order changed during sync; skipping write")
		return OutcomeConflict, nil
	}
	if outcome == OutcomeTransitioned {
		s.metrics.IncTransition(string(mapped))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"from": order.Status,
			"to":   mapped,
		}), "order status synced")
	}
	return outcome, nil
}

// locallyFinal reports statuses a provider report may not move. Refunds and
// cancellations are settled on the storefront side.
func locallyFinal(status enums.OrderStatus) bool {
	return status == enums.OrderStatusRefunded || status == enums.OrderStatusCanceled
}

func (s *Service) adapterFor(ctx context.Context, order models.Order) (providers.Provider, error) {
	pkg, err := s.catalog.FindPackage(ctx, order.PackageID)
	if err != nil {
		return nil, fmt.Errorf("load package: %w", err)
	}
	if pkg.ProviderID == nil {
		return nil, errors.New("package has no provider")
	}
	provider, err := s.catalog.FindProvider(ctx, *pkg.ProviderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("provider missing")
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return s.providers.For(*provider)
}
