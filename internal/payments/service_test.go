package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	"github.com/angelmondragon/smm-storefront/pkg/db"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
	"github.com/angelmondragon/smm-storefront/pkg/square"
	"github.com/angelmondragon/smm-storefront/pkg/testdb"
)

type fakeGateway struct {
	name    enums.PaymentProvider
	event   webhooks.Event
	intents int
}

func (g *fakeGateway) Name() enums.PaymentProvider { return g.name }

func (g *fakeGateway) IsDemo() bool { return false }

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	g.intents++
	return Intent{ID: fmt.Sprintf("pi_%d_%d", req.OrderID, g.intents), ClientSecret: "secret"}, nil
}

func (g *fakeGateway) ParseEvent(context.Context, []byte, string) (webhooks.Event, error) {
	if g.event.ID == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "bad signature")
	}
	return g.event, nil
}

func (g *fakeGateway) Refund(context.Context, RefundRequest) (RefundResult, error) {
	return RefundResult{Accepted: true}, nil
}

type fakeSquareAPI struct {
	status   string
	requests []square.PaymentCreateParams
}

func (f *fakeSquareAPI) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	f.requests = append(f.requests, params)
	id := "sqpay_" + params.ReferenceID
	status := f.status
	return &sq.Payment{ID: &id, Status: &status}, nil
}

func (f *fakeSquareAPI) RefundPayment(context.Context, square.RefundParams) (*sq.PaymentRefund, error) {
	status := "COMPLETED"
	return &sq.PaymentRefund{ID: "refund-1", Status: &status}, nil
}

func (f *fakeSquareAPI) WebhookSecret() string { return "sq-secret" }

func (f *fakeSquareAPI) LocationID() string { return "LOC1" }

type failingOutbox struct{}

func (failingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

type fixture struct {
	conn  *gorm.DB
	svc   Service
	repo  Repository
	pkg   *models.Package
	guard *webhooks.IdempotencyGuard
}

type fixtureOptions struct {
	active     Gateway
	extra      []Gateway
	outbox     outboxPublisher
	production bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	logg := logger.Nop()
	if opts.active == nil {
		opts.active = NewDemoGateway()
	}
	if opts.outbox == nil {
		opts.outbox = outbox.NewService(outbox.NewRepository(conn), logg)
	}
	guard, err := webhooks.NewIdempotencyGuard(redis.NewMemory(), time.Hour, webhooks.ScopeStripe)
	require.NoError(t, err)

	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Tx:         db.Wrap(conn),
		Payments:   repo,
		Orders:     orders.NewRepository(conn),
		Outbox:     opts.outbox,
		Active:     opts.active,
		Registry:   NewRegistry(append([]Gateway{opts.active}, opts.extra...)...),
		Guards:     map[enums.PaymentProvider]WebhookGuard{enums.PaymentProviderStripe: guard},
		Currency:   "usd",
		Production: opts.production,
		Logger:     logg,
	})
	require.NoError(t, err)
	pkg := testdb.SeedPackage(t, conn, enums.MetricViews, "10.00", 1000, nil)
	return &fixture{conn: conn, svc: svc, repo: repo, pkg: pkg, guard: guard}
}

func (f *fixture) seedGroup(t *testing.T, number string, amounts ...string) []*models.Order {
	t.Helper()
	group := uuid.New()
	out := make([]*models.Order, 0, len(amounts))
	for i, amount := range amounts {
		idx := i
		value := amount
		out = append(out, testdb.SeedOrder(t, f.conn, f.pkg, number, func(o *models.Order) {
			if len(amounts) > 1 {
				o.GroupID = &group
				o.SiblingIndex = idx
			}
			o.Amount = decimal.RequireFromString(value)
		}))
	}
	return out
}

func (f *fixture) order(t *testing.T, id uint64) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, id).Error)
	return order
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateIntentChargesWholeGroupOnFirstSibling(t *testing.T) {
	gw := &fakeGateway{name: enums.PaymentProviderStripe}
	f := newFixture(t, fixtureOptions{active: gw})
	group := f.seedGroup(t, "SMM-260314-AAAAAA", "7.00", "3.00")

	result, err := f.svc.CreateIntent(context.Background(), group[1].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderStripe, result.Provider)
	assert.False(t, result.DemoMode)
	assert.Equal(t, "secret", result.ClientSecret)

	payment, err := f.repo.FindByOrderID(context.Background(), group[0].ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(payment.Amount))
	assert.Equal(t, result.PaymentIntentID, payment.IntentID())
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)

	again, err := f.svc.CreateIntent(context.Background(), group[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, result.PaymentIntentID, again.PaymentIntentID)

	var count int64
	require.NoError(t, f.conn.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateIntentRejectsPaidOrder(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	order := f.seedGroup(t, "SMM-260314-BBBBBB", "10.00")[0]
	require.NoError(t, f.conn.Model(order).Update("payment_status", enums.PaymentStatusCompleted).Error)

	_, err := f.svc.CreateIntent(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.CreateIntent(context.Background(), 999)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHandleSucceededMarksGroupOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	group := f.seedGroup(t, "SMM-260314-CCCCCC", "6.00", "4.00")
	testdb.SeedPayment(t, f.conn, group[0], enums.PaymentProviderDemo, "demo_pi_1", enums.PaymentStatusPending)

	require.NoError(t, f.svc.HandleSucceeded(ctx, enums.PaymentProviderDemo, "demo_pi_1"))
	require.NoError(t, f.svc.HandleSucceeded(ctx, enums.PaymentProviderDemo, "demo_pi_1"))

	for _, o := range group {
		stored := f.order(t, o.ID)
		assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
		assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	}
	payment, err := f.repo.FindByIntent(ctx, enums.PaymentProviderDemo, "demo_pi_1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, int64(2), f.events(t, enums.EventOrderPaid))
}

func TestHandleSucceededIgnoresUnknownIntent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.NoError(t, f.svc.HandleSucceeded(context.Background(), enums.PaymentProviderStripe, "pi_missing"))
	assert.Zero(t, f.events(t, enums.EventOrderPaid))
}

func TestHandleFailedThenRetryResetsPaymentStatus(t *testing.T) {
	gw := &fakeGateway{name: enums.PaymentProviderStripe}
	f := newFixture(t, fixtureOptions{active: gw})
	ctx := context.Background()
	order := f.seedGroup(t, "SMM-260314-DDDDDD", "10.00")[0]

	first, err := f.svc.CreateIntent(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleFailed(ctx, enums.PaymentProviderStripe, first.PaymentIntentID))

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderPaymentFailed))

	_, err = f.svc.CreateIntent(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, f.order(t, order.ID).PaymentStatus)
}

func TestSimulateCompletesDemoPayment(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	group := f.seedGroup(t, "SMM-260314-EEEEEE", "5.00", "5.00")

	updated, err := f.svc.Simulate(context.Background(), group[1].ID)
	require.NoError(t, err)
	assert.Equal(t, group[0].ID, updated.ID)
	assert.Equal(t, enums.PaymentStatusCompleted, updated.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, f.order(t, group[1].ID).PaymentStatus)

	again, err := f.svc.Simulate(context.Background(), group[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, again.PaymentStatus)
	assert.Equal(t, int64(2), f.events(t, enums.EventOrderPaid))
}

func TestSimulateForbiddenOutsideDemo(t *testing.T) {
	prod := newFixture(t, fixtureOptions{production: true})
	order := prod.seedGroup(t, "SMM-260314-FFFFFF", "10.00")[0]
	_, err := prod.svc.Simulate(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	live := newFixture(t, fixtureOptions{active: &fakeGateway{name: enums.PaymentProviderStripe}})
	order = live.seedGroup(t, "SMM-260314-GGGGGG", "10.00")[0]
	_, err = live.svc.Simulate(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.PaymentStatusPending, live.order(t, order.ID).PaymentStatus)
}

func TestConfirmWebhookAppliesEventOnce(t *testing.T) {
	gw := &fakeGateway{name: enums.PaymentProviderStripe}
	f := newFixture(t, fixtureOptions{active: gw})
	ctx := context.Background()
	order := f.seedGroup(t, "SMM-260314-HHHHHH", "10.00")[0]
	intent, err := f.svc.CreateIntent(ctx, order.ID)
	require.NoError(t, err)

	gw.event = webhooks.Event{ID: "evt_1", Type: "payment_intent.succeeded", IntentID: intent.PaymentIntentID, Outcome: webhooks.OutcomeSucceeded}
	event, err := f.svc.ConfirmWebhook(ctx, enums.PaymentProviderStripe, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	_, err = f.svc.ConfirmWebhook(ctx, enums.PaymentProviderStripe, []byte("{}"), "sig")
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderPaid))
}

func TestConfirmWebhookRejectsBadSignatureAndUnknownProvider(t *testing.T) {
	f := newFixture(t, fixtureOptions{active: &fakeGateway{name: enums.PaymentProviderStripe}})

	_, err := f.svc.ConfirmWebhook(context.Background(), enums.PaymentProviderStripe, []byte("{}"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.ConfirmWebhook(context.Background(), enums.PaymentProviderSquare, []byte("{}"), "sig")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}

func TestConfirmWebhookReleasesKeyOnFailure(t *testing.T) {
	gw := &fakeGateway{name: enums.PaymentProviderStripe}
	f := newFixture(t, fixtureOptions{active: gw, outbox: failingOutbox{}})
	ctx := context.Background()
	order := f.seedGroup(t, "SMM-260314-JJJJJJ", "10.00")[0]
	testdb.SeedPayment(t, f.conn, order, enums.PaymentProviderStripe, "pi_fail", enums.PaymentStatusPending)

	gw.event = webhooks.Event{ID: "evt_retry", IntentID: "pi_fail", Outcome: webhooks.OutcomeSucceeded}
	_, err := f.svc.ConfirmWebhook(ctx, enums.PaymentProviderStripe, []byte("{}"), "sig")
	require.Error(t, err)
	assert.Equal(t, enums.PaymentStatusPending, f.order(t, order.ID).PaymentStatus)

	seen, err := f.guard.CheckAndMark(ctx, "evt_retry")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestChargeSourceCompletesSquarePayment(t *testing.T) {
	api := &fakeSquareAPI{status: "COMPLETED"}
	f := newFixture(t, fixtureOptions{active: NewSquareGateway(api, time.Second)})
	ctx := context.Background()
	order := f.seedGroup(t, "SMM-260314-KKKKKK", "12.50")[0]

	intent, err := f.svc.CreateIntent(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOC1", intent.ClientSecret)

	result, err := f.svc.ChargeSource(ctx, order.ID, "cnon:card")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	require.Len(t, api.requests, 1)
	assert.Equal(t, int64(1250), api.requests[0].AmountCents)
	assert.Equal(t, intent.PaymentIntentID, api.requests[0].ReferenceID)

	payment, err := f.repo.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "sqpay_"+intent.PaymentIntentID, ExternalPaymentID(*payment))
	assert.Equal(t, enums.OrderStatusProcessing, f.order(t, order.ID).Status)
}

func TestChargeSourceDeclinedCard(t *testing.T) {
	api := &fakeSquareAPI{status: "FAILED"}
	f := newFixture(t, fixtureOptions{active: NewSquareGateway(api, time.Second)})
	order := f.seedGroup(t, "SMM-260314-LLLLLL", "10.00")[0]

	result, err := f.svc.ChargeSource(context.Background(), order.ID, "cnon:declined")
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Equal(t, enums.PaymentStatusFailed, f.order(t, order.ID).PaymentStatus)

	_, err = f.svc.ChargeSource(context.Background(), order.ID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestChargeSourceRequiresSquare(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	order := f.seedGroup(t, "SMM-260314-MMMMMM", "10.00")[0]
	_, err := f.svc.ChargeSource(context.Background(), order.ID, "cnon:card")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}
