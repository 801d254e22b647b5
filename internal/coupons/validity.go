package coupons

import (
	"time"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
)

// IsValid reports whether the coupon may be applied at now. It does not
// look at the order amount; min_order is checked by pricing.
func IsValid(coupon *models.Coupon, now time.Time) bool {
	if coupon == nil || !coupon.Active {
		return false
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return false
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return false
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return false
	}
	return true
}
