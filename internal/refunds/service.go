package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/payments"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayRouter interface {
	For(provider enums.PaymentProvider) (payments.Gateway, error)
}

type Service interface {
	// Refund returns the full payment of the order's group. It reports
	// false without an error when the gateway declined.
	Refund(ctx context.Context, actor string, orderID uint64) (bool, error)
}

type ServiceParams struct {
	Tx       txRunner
	Payments payments.Repository
	Orders   orders.Repository
	Gateways gatewayRouter
	Outbox   outboxPublisher
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	payments payments.Repository
	orders   orders.Repository
	gateways gatewayRouter
	outbox   outboxPublisher
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
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
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.Tx,
		payments: params.Payments,
		orders:   params.Orders,
		gateways: params.Gateways,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *service) Refund(ctx context.Context, actor string, orderID uint64) (bool, error) {
	ctx = s.logg.WithActor(s.logg.WithOrderID(ctx, orderID), actor)

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, orders.MapLoadError(err)
	}
	if order.Status == enums.OrderStatusRefunded {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already refunded")
	}
	group, err := s.orders.ListByGroup(ctx, order)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order group")
	}

	payment, err := s.payments.FindByOrderID(ctx, group[0].ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return false, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment is %s, only completed payments can be refunded", payment.Status)
	}

	gateway, err := s.gateways.For(payment.Provider)
	if err != nil {
		return false, err
	}
	result, err := gateway.Refund(ctx, payments.RefundRequest{
		PaymentID:   payment.ID,
		IntentID:    payment.IntentID(),
		ExternalID:  payments.ExternalPaymentID(*payment),
		AmountCents: payments.ToCents(payment.Amount),
		Currency:    payment.Currency,
		Reason:      "requested_by_customer",
	})
	if err != nil {
		s.metrics.IncPayment(string(payment.Provider), "refund_error")
		return false, err
	}
	if !result.Accepted {
		s.metrics.IncPayment(string(payment.Provider), "refund_declined")
		s.logg.Warn(s.logg.WithField(ctx, "refund_status", result.Status), "refund declined by gateway")
		return false, nil
	}
	if result.Pending {
		// Stripe and Square accept the refund and settle it later; a later
		// failure is handled manually from the gateway dashboard.
		s.metrics.IncPayment(string(payment.Provider), "refund_pending")
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"refund_id":     result.RefundID,
			"refund_status": result.Status,
		}), "refund pending at gateway; recording as refunded")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := s.payments.WithTx(tx)
		locked, err := paymentsRepo.FindByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		if locked.Status == enums.PaymentStatusRefunded {
			return nil
		}
		updates := map[string]any{"status": enums.PaymentStatusRefunded}
		if meta := withRefundID(locked.Metadata, result.RefundID); meta != nil {
			updates["metadata"] = meta
		}
		if err := paymentsRepo.Update(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}

		ordersRepo := s.orders.WithTx(tx)
		if err := ordersRepo.UpdateMany(ctx, orders.IDs(group), map[string]any{
			"status":         enums.OrderStatusRefunded,
			"payment_status": enums.PaymentStatusRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark orders refunded")
		}
		for _, sibling := range group {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderRefunded,
				AggregateType: enums.AggregateOrder,
				AggregateID:   strconv.FormatUint(sibling.ID, 10),
				Actor:         actor,
				Data:          payloads.OrderRefundedEvent{OrderID: sibling.ID, PaymentID: locked.ID},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue refund event")
			}
		}
		return nil
	})
	if err != nil {
		// The gateway already moved the money; the row needs manual repair.
		s.logg.Error(s.logg.WithField(ctx, "refund_id", result.RefundID), "refund accepted but not recorded", err)
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}

	for range group {
		s.metrics.IncTransition(string(enums.OrderStatusRefunded))
	}
	s.metrics.IncPayment(string(payment.Provider), "refunded")
	s.logg.Info(s.logg.WithField(ctx, "refund_id", result.RefundID), "order refunded")
	return true, nil
}

func withRefundID(raw json.RawMessage, refundID string) json.RawMessage {
	if refundID == "" {
		return nil
	}
	meta := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &meta)
	}
	meta["refund_id"] = refundID
	out, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return out
}

var _ gatewayRouter = (*payments.Registry)(nil)
