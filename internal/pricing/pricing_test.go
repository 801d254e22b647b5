package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func pkg(t *testing.T, qty int, price string) models.Package {
	return models.Package{ID: 1, Quantity: qty, Price: dec(t, price), MinQuantity: 1, MaxQuantity: 100000, Active: true}
}

func percentCoupon(t *testing.T, value string) *models.Coupon {
	return &models.Coupon{ID: 7, Code: "SAVE", DiscountType: enums.DiscountTypePercentage, Value: dec(t, value), Active: true}
}

func TestCalculateExactPackageQuantityReturnsListPrice(t *testing.T) {
	p := pkg(t, 1000, "19.99")
	q := Calculate(p, 1000, nil, now)
	assert.True(t, q.Subtotal.Equal(p.Price))
	assert.True(t, q.Total.Equal(p.Price))
	assert.True(t, q.Discount.IsZero())
	assert.Nil(t, q.Coupon)
}

func TestCalculateScalesLinearly(t *testing.T) {
	q := Calculate(pkg(t, 1000, "50.00"), 500, nil, now)
	assert.Equal(t, "25.00", q.Subtotal.StringFixed(2))

	q = Calculate(pkg(t, 3, "10.00"), 1, nil, now)
	assert.Equal(t, "3.33", q.Subtotal.StringFixed(2))
}

func TestCalculatePercentageCappedByMaxDiscount(t *testing.T) {
	coupon := percentCoupon(t, "10")
	coupon.MaxDiscount = decimal.NewNullDecimal(dec(t, "20"))

	q := Calculate(pkg(t, 1000, "50.00"), 500, coupon, now)
	assert.Equal(t, "25.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "2.50", q.Discount.StringFixed(2))
	assert.Equal(t, "22.50", q.Total.StringFixed(2))
	assert.Same(t, coupon, q.Coupon)

	coupon.Value = dec(t, "90")
	q = Calculate(pkg(t, 1000, "50.00"), 1000, coupon, now)
	assert.Equal(t, "20.00", q.Discount.StringFixed(2))
	assert.Equal(t, "30.00", q.Total.StringFixed(2))
}

func TestCalculateFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	coupon := &models.Coupon{Code: "BIG", DiscountType: enums.DiscountTypeFixed, Value: dec(t, "500"), Active: true}
	q := Calculate(pkg(t, 100, "12.00"), 100, coupon, now)
	assert.True(t, q.Discount.Equal(q.Subtotal))
	assert.True(t, q.Total.IsZero())
}

func TestCalculateDropsCouponsThatDoNotApply(t *testing.T) {
	expired := percentCoupon(t, "10")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past

	notStarted := percentCoupon(t, "10")
	future := now.Add(time.Hour)
	notStarted.StartsAt = &future

	inactive := percentCoupon(t, "10")
	inactive.Active = false

	exhausted := percentCoupon(t, "10")
	limit := 3
	exhausted.UsageLimit = &limit
	exhausted.UsedCount = 3

	belowMinimum := percentCoupon(t, "10")
	belowMinimum.MinOrder = decimal.NewNullDecimal(dec(t, "100"))

	for name, coupon := range map[string]*models.Coupon{
		"expired":       expired,
		"not started":   notStarted,
		"inactive":      inactive,
		"exhausted":     exhausted,
		"below minimum": belowMinimum,
	} {
		q := Calculate(pkg(t, 1000, "50.00"), 1000, coupon, now)
		assert.True(t, q.Discount.IsZero(), name)
		assert.Nil(t, q.Coupon, name)
		assert.Equal(t, "50.00", q.Total.StringFixed(2), name)
	}
}

func TestCalculateCouponCapAfterNUses(t *testing.T) {
	coupon := percentCoupon(t, "10")
	limit := 2
	coupon.UsageLimit = &limit

	for i := 0; i < limit; i++ {
		q := Calculate(pkg(t, 1000, "50.00"), 1000, coupon, now)
		require.False(t, q.Discount.IsZero())
		coupon.UsedCount++
	}
	q := Calculate(pkg(t, 1000, "50.00"), 1000, coupon, now)
	assert.True(t, q.Discount.IsZero())
}

func TestCalculateIsDeterministicAndBalanced(t *testing.T) {
	coupon := percentCoupon(t, "15")
	p := pkg(t, 700, "33.33")
	for _, qty := range []int{1, 7, 99, 700, 1234, 5000} {
		a := Calculate(p, qty, coupon, now)
		b := Calculate(p, qty, coupon, now)
		assert.True(t, a.Total.Equal(b.Total))
		assert.True(t, a.Discount.LessThanOrEqual(a.Subtotal))
		assert.True(t, a.Total.Equal(decimal.Max(decimal.Zero, a.Subtotal.Sub(a.Discount))), "qty %d", qty)
	}
}
