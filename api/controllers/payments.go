package controllers

import (
	"net/http"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	"github.com/angelmondragon/smm-storefront/internal/payments"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

type paymentOrderRequest struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

type squareChargeRequest struct {
	OrderID  uint64 `json:"order_id" validate:"required"`
	SourceID string `json:"source_id" validate:"required,max=255"`
}

type squareChargeResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Succeeded bool   `json:"succeeded"`
}

type paymentStateResponse struct {
	OrderID       uint64              `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// PaymentIntent opens (or reuses) the gateway intent for an order group.
func PaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload paymentOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateIntent(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// DemoSimulate marks a demo payment as paid. The service refuses it outside
// demo mode and in production.
func DemoSimulate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload paymentOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Simulate(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentStateResponse{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
		})
	}
}

// SquareCharge charges a Web Payments SDK card token against the order.
func SquareCharge(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload squareChargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ChargeSource(r.Context(), payload.OrderID, validators.SanitizeString(payload.SourceID, 255))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, squareChargeResponse{
			PaymentID: result.PaymentID,
			Status:    result.Status,
			Succeeded: result.Succeeded(),
		})
	}
}
