package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/webhooks"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/smm-storefront/pkg/settings"
)

const defaultCurrency = "usd"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// WebhookGuard remembers processed provider event ids.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// IntentResult is returned to the browser to complete payment.
type IntentResult struct {
	ClientSecret    string                `json:"client_secret"`
	PaymentIntentID string                `json:"payment_intent_id"`
	DemoMode        bool                  `json:"demo_mode"`
	Provider        enums.PaymentProvider `json:"provider"`
}

type Service interface {
	CreateIntent(ctx context.Context, orderID uint64) (*IntentResult, error)
	HandleSucceeded(ctx context.Context, provider enums.PaymentProvider, intentID string) error
	HandleFailed(ctx context.Context, provider enums.PaymentProvider, intentID string) error
	Simulate(ctx context.Context, orderID uint64) (*models.Order, error)
	ConfirmWebhook(ctx context.Context, provider enums.PaymentProvider, payload []byte, signature string) (webhooks.Event, error)
	ChargeSource(ctx context.Context, orderID uint64, sourceID string) (*ChargeResult, error)
	DemoMode() bool
}

type ServiceParams struct {
	Tx         txRunner
	Payments   Repository
	Orders     orders.Repository
	Outbox     outboxPublisher
	Active     Gateway
	Registry   *Registry
	Guards     map[enums.PaymentProvider]WebhookGuard
	Settings   settings.Store
	Currency   string
	Production bool
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	payments   Repository
	orders     orders.Repository
	outbox     outboxPublisher
	active     Gateway
	registry   *Registry
	guards     map[enums.PaymentProvider]WebhookGuard
	settings   settings.Store
	currency   string
	production bool
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Active == nil {
		return nil, fmt.Errorf("active gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry(params.Active)
	}
	currency := params.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &service{
		tx:         params.Tx,
		payments:   params.Payments,
		orders:     params.Orders,
		outbox:     params.Outbox,
		active:     params.Active,
		registry:   registry,
		guards:     params.Guards,
		settings:   params.Settings,
		currency:   currency,
		production: params.Production,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

func (s *service) DemoMode() bool { return s.active.IsDemo() }

// CreateIntent opens (or replaces) the single payment of an order group on
// the active gateway. The amount is the sum of every sibling.
func (s *service) CreateIntent(ctx context.Context, orderID uint64) (*IntentResult, error) {
	state, err := s.prepareIntent(ctx, s.active, orderID, false)
	if err != nil {
		return nil, err
	}
	return &IntentResult{
		ClientSecret:    state.intent.ClientSecret,
		PaymentIntentID: state.intent.ID,
		DemoMode:        s.active.IsDemo(),
		Provider:        s.active.Name(),
	}, nil
}

type intentState struct {
	first   *models.Order
	group   []models.Order
	payment *models.Payment
	intent  Intent
}

// prepareIntent loads the order group, rejects paid groups and upserts the
// payment row for gw. With reuse set, a pending row already on gw keeps its
// intent and the gateway is not called.
func (s *service) prepareIntent(ctx context.Context, gw Gateway, orderID uint64, reuse bool) (*intentState, error) {
	first, group, err := s.loadGroup(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := ensurePayable(first); err != nil {
		return nil, err
	}

	existing, err := s.payments.FindByOrderID(ctx, first.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if existing != nil && existing.Status == enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if reuse && existing != nil && existing.Provider == gw.Name() &&
		existing.Status == enums.PaymentStatusPending && existing.IntentID() != "" {
		return &intentState{first: first, group: group, payment: existing, intent: Intent{ID: existing.IntentID()}}, nil
	}

	amount := groupTotal(group)
	cents := ToCents(amount)
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}
	currency := settings.GetOr(ctx, s.settings, settings.KeyCurrency, s.currency)

	intent, err := gw.CreateIntent(ctx, IntentRequest{
		OrderID:     first.ID,
		OrderNumber: first.OrderNumber,
		AmountCents: cents,
		Currency:    currency,
		Email:       stringValue(first.GuestEmail),
	})
	if err != nil {
		return nil, err
	}

	intentID := intent.ID
	payment := &models.Payment{
		OrderID:          first.ID,
		Provider:         gw.Name(),
		ProviderIntentID: &intentID,
		Amount:           amount,
		Currency:         currency,
		Status:           enums.PaymentStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		if existing != nil {
			locked, err := repo.FindByIDForUpdate(ctx, existing.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
			}
			if locked.Status == enums.PaymentStatusCompleted || locked.Status == enums.PaymentStatusRefunded {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
			}
		}
		if err := repo.Upsert(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment")
		}
		if first.PaymentStatus == enums.PaymentStatusFailed {
			updates := map[string]any{"payment_status": enums.PaymentStatusPending}
			if err := s.orders.WithTx(tx).UpdateMany(ctx, orders.IDs(group), updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset payment status")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, first.ID), map[string]any{
		"provider":  gw.Name(),
		"intent_id": intentID,
		"amount":    amount.StringFixed(2),
	})
	s.logg.Info(logCtx, "payment intent created")
	return &intentState{first: first, group: group, payment: payment, intent: intent}, nil
}

// HandleSucceeded confirms a payment. It is idempotent: an unknown intent
// is logged and ignored, an already completed payment is left alone.
func (s *service) HandleSucceeded(ctx context.Context, provider enums.PaymentProvider, intentID string) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"provider": provider, "intent_id": intentID})
	payment, err := s.payments.FindByIntent(ctx, provider, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "payment succeeded for unknown intent")
			s.metrics.IncPayment(string(provider), "unknown_intent")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status == enums.PaymentStatusCompleted {
		s.metrics.IncPayment(string(provider), "duplicate")
		return nil
	}

	applied := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		if locked.Status == enums.PaymentStatusCompleted || locked.Status == enums.PaymentStatusRefunded {
			return nil
		}
		if err := repo.Update(ctx, locked.ID, map[string]any{"status": enums.PaymentStatusCompleted}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}

		ordersRepo := s.orders.WithTx(tx)
		_, group, err := s.loadGroup(ctx, ordersRepo, locked.OrderID)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"payment_status": enums.PaymentStatusCompleted,
			"status":         enums.OrderStatusProcessing,
		}
		if err := ordersRepo.UpdateMany(ctx, orders.IDs(group), updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark orders paid")
		}

		for _, order := range group {
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   strconv.FormatUint(order.ID, 10),
				Actor:         string(provider),
				Data: payloads.OrderPaidEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					GroupID:     order.GroupID,
					PaymentID:   locked.ID,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue dispatch")
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.IncPayment(string(provider), "error")
		return err
	}
	if !applied {
		s.metrics.IncPayment(string(provider), "duplicate")
		return nil
	}

	s.metrics.IncPayment(string(provider), "succeeded")
	s.logg.Info(s.logg.WithOrderID(ctx, payment.OrderID), "payment confirmed")
	return nil
}

// HandleFailed records a declined payment. Order status is untouched so the
// buyer can retry with a new intent.
func (s *service) HandleFailed(ctx context.Context, provider enums.PaymentProvider, intentID string) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"provider": provider, "intent_id": intentID})
	payment, err := s.payments.FindByIntent(ctx, provider, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "payment failed for unknown intent")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		if locked.Status != enums.PaymentStatusPending {
			return nil
		}
		if err := repo.Update(ctx, locked.ID, map[string]any{"status": enums.PaymentStatusFailed}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
		}

		ordersRepo := s.orders.WithTx(tx)
		first, group, err := s.loadGroup(ctx, ordersRepo, locked.OrderID)
		if err != nil {
			return err
		}
		updates := map[string]any{"payment_status": enums.PaymentStatusFailed}
		if err := ordersRepo.UpdateMany(ctx, orders.IDs(group), updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark orders failed")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   strconv.FormatUint(locked.ID, 10),
			Actor:         string(provider),
			Data:          payloads.OrderPaymentFailedEvent{OrderID: first.ID, PaymentID: locked.ID},
		})
	})
	if err != nil {
		return err
	}
	s.metrics.IncPayment(string(provider), "failed")
	s.logg.Warn(s.logg.WithOrderID(ctx, payment.OrderID), "payment failed")
	return nil
}

// Simulate confirms a demo payment through the same path a webhook takes.
// It is refused outside demo mode and in production.
func (s *service) Simulate(ctx context.Context, orderID uint64) (*models.Order, error) {
	if !s.active.IsDemo() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment simulation requires demo mode")
	}
	if s.production {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment simulation is disabled in production")
	}

	first, _, err := s.loadGroup(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if first.PaymentStatus != enums.PaymentStatusCompleted {
		state, err := s.prepareIntent(ctx, s.active, first.ID, true)
		if err != nil {
			return nil, err
		}
		if err := s.HandleSucceeded(ctx, s.active.Name(), state.intent.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.orders.FindByID(ctx, first.ID)
	if err != nil {
		return nil, orders.MapLoadError(err)
	}
	return updated, nil
}

// ConfirmWebhook verifies a provider notification and applies it once. A
// processing failure forgets the event id so the provider's retry is
// applied.
func (s *service) ConfirmWebhook(ctx context.Context, provider enums.PaymentProvider, payload []byte, signature string) (webhooks.Event, error) {
	gw, err := s.registry.For(provider)
	if err != nil {
		return webhooks.Event{}, err
	}
	event, err := gw.ParseEvent(ctx, payload, signature)
	if err != nil {
		s.metrics.IncPayment(string(provider), "rejected")
		return webhooks.Event{}, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": event.Type})
	if event.Outcome == webhooks.OutcomeIgnored {
		s.logg.Info(ctx, "payment webhook ignored")
		return event, nil
	}

	guard := s.guards[provider]
	if guard != nil {
		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
		}
		if seen {
			s.logg.Info(ctx, "payment webhook already processed")
			return event, nil
		}
	}

	switch event.Outcome {
	case webhooks.OutcomeSucceeded:
		err = s.HandleSucceeded(ctx, provider, event.IntentID)
	case webhooks.OutcomeFailed:
		err = s.HandleFailed(ctx, provider, event.IntentID)
	}
	if err != nil {
		if guard != nil {
			if delErr := guard.Delete(ctx, event.ID); delErr != nil {
				s.logg.Error(ctx, "release webhook idempotency key", delErr)
			}
		}
		return webhooks.Event{}, err
	}
	return event, nil
}

// ChargeSource charges a Square card token for the order group. A completed
// or failed charge is applied immediately; the later webhook is a no-op.
func (s *service) ChargeSource(ctx context.Context, orderID uint64, sourceID string) (*ChargeResult, error) {
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required")
	}
	gw, err := s.registry.For(enums.PaymentProviderSquare)
	if err != nil {
		return nil, err
	}
	charger, ok := gw.(sourceCharger)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "square gateway cannot charge sources")
	}

	state, err := s.prepareIntent(ctx, gw, orderID, true)
	if err != nil {
		return nil, err
	}
	result, err := charger.Charge(ctx, ChargeRequest{
		ReferenceID: state.intent.ID,
		SourceID:    sourceID,
		AmountCents: ToCents(state.payment.Amount),
		Currency:    state.payment.Currency,
		Email:       stringValue(state.first.GuestEmail),
		Note:        "Order " + state.first.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	if result.PaymentID != "" {
		meta, _ := json.Marshal(map[string]string{metadataSquarePaymentID: result.PaymentID})
		if err := s.payments.Update(ctx, state.payment.ID, map[string]any{"metadata": meta}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save square payment id")
		}
	}

	switch {
	case result.Succeeded():
		err = s.HandleSucceeded(ctx, enums.PaymentProviderSquare, state.intent.ID)
	case result.Failed():
		err = s.HandleFailed(ctx, enums.PaymentProviderSquare, state.intent.ID)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// loadGroup returns sibling 0 and the whole group of orderID. The payment
// row always hangs off sibling 0.
func (s *service) loadGroup(ctx context.Context, repo orders.Repository, orderID uint64) (*models.Order, []models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, orders.MapLoadError(err)
	}
	group, err := repo.ListByGroup(ctx, order)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order group")
	}
	first := group[0]
	return &first, group, nil
}

func ensurePayable(order *models.Order) error {
	switch order.PaymentStatus {
	case enums.PaymentStatusCompleted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	case enums.PaymentStatusRefunded:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was refunded")
	}
	if order.Status == enums.OrderStatusCanceled || order.Status == enums.OrderStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed")
	}
	return nil
}

func groupTotal(group []models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, order := range group {
		total = total.Add(order.Amount)
	}
	return total.Round(2)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
