package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/api/validators"
	checkoutsvc "github.com/angelmondragon/smm-storefront/internal/checkout"
	"github.com/angelmondragon/smm-storefront/internal/pricing"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/types"
)

// Checkout creates the order, or the order group for multi-link purchases.
// Client-side prices are never read; the decoder drops them.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodePermissiveJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		placement, err := svc.Place(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(placement))
	}
}

// CheckoutQuote previews the server-side price without persisting anything.
func CheckoutQuote(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodePermissiveJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), checkoutsvc.QuoteInput{
			PackageID:  payload.PackageID,
			Quantity:   payload.Quantity,
			CouponCode: validators.SanitizeString(payload.CouponCode, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteResponse(quote))
	}
}

type targetLinkRequest struct {
	URL      string `json:"url" validate:"required,max=2048"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type checkoutRequest struct {
	PackageID   uint64              `json:"package_id" validate:"required"`
	Quantity    int                 `json:"quantity" validate:"required,min=1"`
	TargetLink  string              `json:"target_link" validate:"omitempty,max=2048"`
	TargetLinks []targetLinkRequest `json:"target_links" validate:"omitempty,max=50,dive"`
	CouponCode  string              `json:"coupon_code" validate:"omitempty,max=64"`
	GuestEmail  string              `json:"guest_email" validate:"omitempty,email,max=254"`
	UserID      *uint64             `json:"user_id" validate:"omitempty,gt=0"`
}

func (c checkoutRequest) toInput() checkoutsvc.Input {
	var links types.TargetLinks
	for _, link := range c.TargetLinks {
		links = append(links, types.TargetLink{URL: strings.TrimSpace(link.URL), Quantity: link.Quantity})
	}
	return checkoutsvc.Input{
		PackageID:   c.PackageID,
		Quantity:    c.Quantity,
		TargetLink:  strings.TrimSpace(c.TargetLink),
		TargetLinks: links,
		CouponCode:  validators.SanitizeString(c.CouponCode, 64),
		GuestEmail:  strings.ToLower(strings.TrimSpace(c.GuestEmail)),
		UserID:      c.UserID,
	}
}

type quoteRequest struct {
	PackageID  uint64 `json:"package_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	CouponCode string `json:"coupon_code" validate:"omitempty,max=64"`
}

type quoteResponse struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	CouponCode string          `json:"coupon_code,omitempty"`
}

func newQuoteResponse(q pricing.Quote) quoteResponse {
	return quoteResponse{
		Subtotal:   q.Subtotal,
		Discount:   q.Discount,
		Total:      q.Total,
		CouponCode: q.CouponCode(),
	}
}

type siblingResponse struct {
	OrderID      uint64          `json:"order_id"`
	SiblingIndex int             `json:"sibling_index"`
	TargetLink   string          `json:"target_link"`
	Quantity     int             `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`
}

type checkoutResponse struct {
	OrderID       uint64              `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	GroupID       *uuid.UUID          `json:"group_id,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Discount      decimal.Decimal     `json:"discount"`
	Quantity      int                 `json:"quantity"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Orders        []siblingResponse   `json:"orders,omitempty"`
}

func newCheckoutResponse(p *checkoutsvc.Placement) checkoutResponse {
	first := p.First()
	if first == nil {
		return checkoutResponse{}
	}
	resp := checkoutResponse{
		OrderID:       first.ID,
		OrderNumber:   first.OrderNumber,
		GroupID:       first.GroupID,
		Amount:        p.Quote.Total,
		Discount:      p.Quote.Discount,
		Status:        first.Status,
		PaymentStatus: first.PaymentStatus,
	}
	for _, order := range p.Orders {
		resp.Quantity += order.Quantity
	}
	if len(p.Orders) > 1 {
		for _, order := range p.Orders {
			resp.Orders = append(resp.Orders, siblingResponse{
				OrderID:      order.ID,
				SiblingIndex: order.SiblingIndex,
				TargetLink:   order.TargetLink,
				Quantity:     order.Quantity,
				Amount:       order.Amount,
			})
		}
	}
	return resp
}
