package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/catalog"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/providers"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/testdb"
)

type statusAdapter struct {
	mu       sync.Mutex
	statuses map[string]providers.StatusResult
	errs     map[string]error
	polled   []string
}

func (a *statusAdapter) CreateOrder(context.Context, string, string, int) (providers.CreateResult, error) {
	return providers.CreateResult{}, errors.New("not used")
}

func (a *statusAdapter) GetStatus(_ context.Context, externalID string) (providers.StatusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polled = append(a.polled, externalID)
	if err := a.errs[externalID]; err != nil {
		return providers.StatusResult{}, err
	}
	return a.statuses[externalID], nil
}

func (a *statusAdapter) GetBalance(context.Context) (providers.Balance, error) {
	return providers.Balance{}, nil
}

func (a *statusAdapter) ListServices(context.Context) ([]providers.RemoteService, error) {
	return nil, nil
}

type staticFactory struct {
	adapter providers.Provider
}

func (f staticFactory) For(models.Provider) (providers.Provider, error) {
	return f.adapter, nil
}

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	adapter *statusAdapter
	pkg     *models.Package
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	adapter := &statusAdapter{
		statuses: map[string]providers.StatusResult{},
		errs:     map[string]error{},
	}
	svc, err := NewService(ServiceParams{
		Orders:      orders.NewRepository(conn),
		Catalog:     catalog.NewRepository(conn),
		Providers:   staticFactory{adapter: adapter},
		Logger:      logger.Nop(),
		Concurrency: 2,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	pkg := testdb.SeedPackage(t, conn, enums.MetricViews, "10.00", 1000, nil)
	testdb.SeedProvider(t, conn, pkg, enums.ProviderKindPerfectPanel, "https://panel.test/api/v2", "77")
	return &fixture{conn: conn, svc: svc, adapter: adapter, pkg: pkg}
}

func (f *fixture) dispatched(t *testing.T, number, externalID string, status enums.OrderStatus) *models.Order {
	t.Helper()
	return testdb.SeedOrder(t, f.conn, f.pkg, number, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusCompleted
		o.Status = status
		o.ProviderOrderID = &externalID
	})
}

func (f *fixture) reload(t *testing.T, id uint64) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, id).Error)
	return order
}

func intPtr(v int) *int { return &v }

func TestMapStatusTable(t *testing.T) {
	cases := map[string]enums.OrderStatus{
		"Pending":      enums.OrderStatusPending,
		"processing":   enums.OrderStatusProcessing,
		"In progress":  enums.OrderStatusInProgress,
		"inprogress":   enums.OrderStatusInProgress,
		"in_progress":  enums.OrderStatusInProgress,
		"Completed":    enums.OrderStatusCompleted,
		"complete":     enums.OrderStatusCompleted,
		"Partial":      enums.OrderStatusPartial,
		"Canceled":     enums.OrderStatusCanceled,
		" cancelled  ": enums.OrderStatusCanceled,
		"REFUNDED":     enums.OrderStatusRefunded,
	}
	for raw, want := range cases {
		got, ok := MapStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "awaiting", "done", "fail"} {
		_, ok := MapStatus(raw)
		assert.False(t, ok, raw)
	}
}

func TestSyncKeepsRefundedOrderClosed(t *testing.T) {
	f := newFixture(t)
	order := testdb.SeedOrder(t, f.conn, f.pkg, "SMM-260314-RRRRRR", func(o *models.Order) {
		ext := "EXT-R"
		o.PaymentStatus = enums.PaymentStatusRefunded
		o.Status = enums.OrderStatusRefunded
		o.ProviderOrderID = &ext
	})
	f.adapter.statuses["EXT-R"] = providers.StatusResult{
		Status:  "Completed",
		Remains: intPtr(0),
		Raw:     []byte(`{"status":"Completed"}`),
	}

	updated, outcome, err := f.svc.SyncByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, enums.OrderStatusRefunded, updated.Status)

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, 1000, stored.CurrentCount)
	assert.JSONEq(t, `{"status":"Completed"}`, string(stored.ProviderResponse))
}

func TestSyncKeepsCanceledOrderClosed(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-SSSSSS", "EXT-S", enums.OrderStatusCanceled)
	f.adapter.statuses["EXT-S"] = providers.StatusResult{Status: "In progress", Remains: intPtr(500)}

	assert.Equal(t, OutcomeRefreshed, f.svc.Sync(context.Background(), *order))
	assert.Equal(t, enums.OrderStatusCanceled, f.reload(t, order.ID).Status)
}

func TestSyncAppliesStatusAndCounts(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-AAAAAA", "EXT-1", enums.OrderStatusProcessing)
	f.adapter.statuses["EXT-1"] = providers.StatusResult{
		Status:     "In progress",
		StartCount: intPtr(150),
		Remains:    intPtr(400),
		Raw:        []byte(`{"status":"In progress"}`),
	}

	outcome := f.svc.Sync(context.Background(), *order)
	assert.Equal(t, OutcomeTransitioned, outcome)

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusInProgress, stored.Status)
	assert.Equal(t, 150, stored.StartCount)
	assert.Equal(t, 150+(1000-400), stored.CurrentCount)
	assert.JSONEq(t, `{"status":"In progress"}`, string(stored.ProviderResponse))
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
}

func TestSyncCountsUseStoredStartWhenProviderOmitsIt(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-BBBBBB", "EXT-2", enums.OrderStatusInProgress)
	require.NoError(t, f.conn.Model(order).Update("start_count", 20).Error)
	order.StartCount = 20
	f.adapter.statuses["EXT-2"] = providers.StatusResult{Status: "in progress", Remains: intPtr(100)}

	assert.Equal(t, OutcomeRefreshed, f.svc.Sync(context.Background(), *order))

	stored := f.reload(t, order.ID)
	assert.Equal(t, 20, stored.StartCount)
	assert.Equal(t, 20+900, stored.CurrentCount)
}

func TestSyncCompletedStampsCompletionTime(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-CCCCCC", "EXT-3", enums.OrderStatusInProgress)
	f.adapter.statuses["EXT-3"] = providers.StatusResult{Status: "Completed", Remains: intPtr(0)}

	assert.Equal(t, OutcomeTransitioned, f.svc.Sync(context.Background(), *order))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, fixedNow.Equal(stored.CompletedAt.UTC()))
	assert.Equal(t, 1000, stored.CurrentCount)
}

func TestSyncUnknownStatusKeepsCurrentStatus(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-DDDDDD", "EXT-4", enums.OrderStatusProcessing)
	f.adapter.statuses["EXT-4"] = providers.StatusResult{Status: "Awaiting", Remains: intPtr(1000)}

	assert.Equal(t, OutcomeUnknownStatus, f.svc.Sync(context.Background(), *order))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	assert.Equal(t, 0, stored.CurrentCount)
}

func TestSyncSkipsUndispatchedOrder(t *testing.T) {
	f := newFixture(t)
	order := testdb.SeedOrder(t, f.conn, f.pkg, "SMM-260314-EEEEEE", nil)

	assert.Equal(t, OutcomeSkipped, f.svc.Sync(context.Background(), *order))
	assert.Empty(t, f.adapter.polled)
}

func TestSyncDoesNotOverwriteConcurrentChange(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-FFFFFF", "EXT-5", enums.OrderStatusProcessing)
	f.adapter.statuses["EXT-5"] = providers.StatusResult{Status: "Completed"}

	// A refund lands between the read and the write.
	require.NoError(t, f.conn.Model(order).Updates(map[string]any{
		"status":         enums.OrderStatusRefunded,
		"payment_status": enums.PaymentStatusRefunded,
	}).Error)

	assert.Equal(t, OutcomeConflict, f.svc.Sync(context.Background(), *order))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Nil(t, stored.CompletedAt)
}

func TestSyncProviderErrorIsSwallowed(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-GGGGGG", "EXT-6", enums.OrderStatusProcessing)
	f.adapter.errs["EXT-6"] = errors.New("connection reset")

	assert.Equal(t, OutcomeFailed, f.svc.Sync(context.Background(), *order))
	assert.Equal(t, enums.OrderStatusProcessing, f.reload(t, order.ID).Status)
}

func TestSyncByIDReturnsStoredOrder(t *testing.T) {
	f := newFixture(t)
	order := f.dispatched(t, "SMM-260314-HHHHHH", "EXT-7", enums.OrderStatusProcessing)
	f.adapter.statuses["EXT-7"] = providers.StatusResult{Status: "partial", Remains: intPtr(250)}

	updated, outcome, err := f.svc.SyncByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, outcome)
	assert.Equal(t, enums.OrderStatusPartial, updated.Status)
	assert.Equal(t, 750, updated.CurrentCount)

	_, _, err = f.svc.SyncByID(context.Background(), 9999)
	require.Error(t, err)
}

func TestSyncDueWalksAllPagesAndCollectsFailures(t *testing.T) {
	f := newFixture(t)
	a := f.dispatched(t, "SMM-260314-JJJJJJ", "EXT-A", enums.OrderStatusProcessing)
	b := f.dispatched(t, "SMM-260314-KKKKKK", "EXT-B", enums.OrderStatusInProgress)
	c := f.dispatched(t, "SMM-260314-LLLLLL", "EXT-C", enums.OrderStatusProcessing)
	done := f.dispatched(t, "SMM-260314-MMMMMM", "EXT-D", enums.OrderStatusCompleted)
	f.adapter.statuses["EXT-A"] = providers.StatusResult{Status: "Completed"}
	f.adapter.statuses["EXT-B"] = providers.StatusResult{Status: "In progress", Remains: intPtr(10)}
	f.adapter.errs["EXT-C"] = errors.New("timeout")

	summary, err := f.svc.SyncDue(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, Summary{Scanned: 3, Transitions: 1, Failed: 1}, summary)
	assert.ElementsMatch(t, []string{"EXT-A", "EXT-B", "EXT-C"}, f.adapter.polled)

	assert.Equal(t, enums.OrderStatusCompleted, f.reload(t, a.ID).Status)
	assert.Equal(t, 990, f.reload(t, b.ID).CurrentCount)
	assert.Equal(t, enums.OrderStatusProcessing, f.reload(t, c.ID).Status)
	assert.Equal(t, enums.OrderStatusCompleted, f.reload(t, done.ID).Status)
}
