package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	"github.com/angelmondragon/smm-storefront/internal/coupons"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// CouponCreator persists a new coupon and indexes its code.
type CouponCreator interface {
	Create(ctx context.Context, input coupons.CreateInput) (*models.Coupon, error)
}

type couponCreateRequest struct {
	Code         string           `json:"code" validate:"required,min=3,max=32"`
	DiscountType string           `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal  `json:"value"`
	MinOrder     *decimal.Decimal `json:"min_order"`
	MaxDiscount  *decimal.Decimal `json:"max_discount"`
	UsageLimit   *int             `json:"usage_limit" validate:"omitempty,min=1"`
	StartsAt     *time.Time       `json:"starts_at"`
	ExpiresAt    *time.Time       `json:"expires_at"`
	Active       *bool            `json:"active"`
}

// AdminCouponCreate handles POST /admin/coupons.
func AdminCouponCreate(svc CouponCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload couponCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountType, err := enums.ParseDiscountType(strings.ToLower(strings.TrimSpace(payload.DiscountType)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount_type"))
			return
		}

		coupon, err := svc.Create(r.Context(), coupons.CreateInput{
			Code:         payload.Code,
			DiscountType: discountType,
			Value:        payload.Value,
			MinOrder:     payload.MinOrder,
			MaxDiscount:  payload.MaxDiscount,
			UsageLimit:   payload.UsageLimit,
			StartsAt:     payload.StartsAt,
			ExpiresAt:    payload.ExpiresAt,
			Active:       payload.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, coupon)
	}
}

var _ CouponCreator = (*coupons.Service)(nil)
