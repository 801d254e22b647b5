package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/smm-storefront/api/middleware"
	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	internalorders "github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/reconcile"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
)

const orderIDParam = "orderId"

// Resender re-queues an order with its provider.
type Resender interface {
	Resend(ctx context.Context, actor string, orderID uint64) (*models.Order, error)
}

// Refunder reverses the payment of an order group.
type Refunder interface {
	Refund(ctx context.Context, actor string, orderID uint64) (bool, error)
}

// Syncer polls the provider for one order on demand.
type Syncer interface {
	SyncByID(ctx context.Context, id uint64) (*models.Order, reconcile.Outcome, error)
}

type patchRequest struct {
	Status       *string `json:"status" validate:"omitempty,max=32"`
	StartCount   *int    `json:"start_count" validate:"omitempty,min=0"`
	CurrentCount *int    `json:"current_count" validate:"omitempty,min=0"`
}

type refundResponse struct {
	OrderID  uint64 `json:"order_id"`
	Refunded bool   `json:"refunded"`
}

type syncResponse struct {
	Outcome reconcile.Outcome `json:"outcome"`
	Order   *models.Order     `json:"order"`
}

// List returns one page of orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns an order together with its group siblings.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// Patch applies a manual status or counter override and records an audit row.
func Patch(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload patchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.PatchInput{
			StartCount:   payload.StartCount,
			CurrentCount: payload.CurrentCount,
		}
		if payload.Status != nil {
			status, err := enums.ParseOrderStatus(strings.TrimSpace(*payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}

		order, err := svc.Patch(r.Context(), middleware.ActorFromContext(r.Context()), orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Delete removes an order that never reached a payment or a provider.
func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Resend clears the provider handle and queues dispatch again.
func Resend(svc Resender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Resend(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, order)
	}
}

// Refund reverses the group's payment. A gateway decline is reported as
// refunded=false with 200, not as an error.
func Refund(svc Refunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refunded, err := svc.Refund(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundResponse{OrderID: orderID, Refunded: refunded})
	}
}

// Sync reconciles one order against its provider immediately.
func Sync(svc Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, outcome, err := svc.SyncByID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, syncResponse{Outcome: outcome, Order: order})
	}
}

func buildListFilters(r *http.Request) (internalorders.ListFilters, error) {
	query := r.URL.Query()
	filters := internalorders.ListFilters{
		OrderNumber: strings.ToUpper(validators.SanitizeString(query.Get("order_number"), 32)),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status filter")
		}
		filters.PaymentStatus = &status
	}
	return filters, nil
}
