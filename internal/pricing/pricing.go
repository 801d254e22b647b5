// Package pricing computes the authoritative price of a checkout. It is pure:
// the same inputs always produce the same quote.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smm-storefront/internal/coupons"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

const places = 2

var hundred = decimal.NewFromInt(100)

// Quote is the priced result. Coupon is nil when none was applied.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Coupon   *models.Coupon  `json:"-"`
}

// CouponCode returns the applied coupon code or "".
func (q Quote) CouponCode() string {
	if q.Coupon == nil {
		return ""
	}
	return q.Coupon.Code
}

// Calculate prices quantity units of pkg. A coupon that is invalid at now,
// or whose min_order the subtotal does not reach, is dropped silently.
func Calculate(pkg models.Package, quantity int, coupon *models.Coupon, now time.Time) Quote {
	subtotal := Subtotal(pkg, quantity)

	discount := decimal.Zero
	var applied *models.Coupon
	if coupon != nil && coupons.IsValid(coupon, now) && meetsMinimum(coupon, subtotal) {
		discount = Discount(coupon, subtotal)
		applied = coupon
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Total:    total.Round(places),
		Coupon:   applied,
	}
}

// Subtotal scales the package price linearly. Ordering exactly the package
// quantity returns the list price untouched.
func Subtotal(pkg models.Package, quantity int) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	switch {
	case pkg.Quantity <= 0:
		return pkg.Price.Mul(qty).Round(places)
	case quantity == pkg.Quantity:
		return pkg.Price.Round(places)
	default:
		return pkg.Price.Mul(qty).Div(decimal.NewFromInt(int64(pkg.Quantity))).Round(places)
	}
}

// Discount is the coupon amount for subtotal, capped by max_discount and
// then by the subtotal itself.
func Discount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(hundred)
	case enums.DiscountTypeFixed:
		discount = coupon.Value
	default:
		return decimal.Zero
	}
	if coupon.MaxDiscount.Valid && discount.GreaterThan(coupon.MaxDiscount.Decimal) {
		discount = coupon.MaxDiscount.Decimal
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(places)
}

func meetsMinimum(coupon *models.Coupon, subtotal decimal.Decimal) bool {
	if !coupon.MinOrder.Valid {
		return true
	}
	return subtotal.GreaterThanOrEqual(coupon.MinOrder.Decimal)
}
