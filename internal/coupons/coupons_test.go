package coupons

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/testdb"
)

func TestIsValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)
	limit := 1

	assert.False(t, IsValid(nil, now))
	assert.True(t, IsValid(&models.Coupon{Active: true}, now))
	assert.False(t, IsValid(&models.Coupon{Active: false}, now))
	assert.False(t, IsValid(&models.Coupon{Active: true, StartsAt: &after}, now))
	assert.True(t, IsValid(&models.Coupon{Active: true, StartsAt: &before, ExpiresAt: &after}, now))
	assert.False(t, IsValid(&models.Coupon{Active: true, ExpiresAt: &before}, now))
	assert.False(t, IsValid(&models.Coupon{Active: true, UsageLimit: &limit, UsedCount: 1}, now))
	assert.True(t, IsValid(&models.Coupon{Active: true, UsageLimit: &limit, UsedCount: 0}, now))
}

func TestIndex(t *testing.T) {
	idx := NewIndex()
	idx.Load([]string{"SPRING10"})
	idx.Add("vip")

	assert.True(t, idx.MayContain("spring10"))
	assert.True(t, idx.MayContain(" VIP "))
	assert.False(t, idx.MayContain("never-issued-code"))

	var nilIndex *Index
	assert.True(t, nilIndex.MayContain("anything"))
	assert.False(t, nilIndex.Current(0, time.Now(), time.Minute))
}

func TestIndexCurrent(t *testing.T) {
	built := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	idx := NewIndex()
	assert.False(t, idx.Current(0, built, time.Minute), "never built")

	idx.Replace([]string{"SPRING10"}, 3, built)
	assert.True(t, idx.Current(3, built.Add(30*time.Second), time.Minute))
	assert.False(t, idx.Current(4, built.Add(30*time.Second), time.Minute), "generation moved")
	assert.False(t, idx.Current(3, built.Add(time.Minute), time.Minute), "aged out")

	idx.Replace([]string{"VIP"}, 4, built)
	assert.False(t, idx.MayContain("SPRING10"))
	assert.True(t, idx.MayContain("vip"))
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Logger: logger.Nop()})
	require.NoError(t, err)
	return svc, conn
}

func TestServiceCreateAndLookup(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	limit := 5
	maxDiscount := decimal.NewFromInt(20)

	created, err := svc.Create(ctx, CreateInput{
		Code:         "spring10",
		DiscountType: enums.DiscountTypePercentage,
		Value:        decimal.NewFromInt(10),
		MaxDiscount:  &maxDiscount,
		UsageLimit:   &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPRING10", created.Code)
	assert.True(t, created.Active)

	found, err := svc.Lookup(ctx, "Spring10")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.MaxDiscount.Valid)

	missing, err := svc.Lookup(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := svc.Lookup(ctx, "  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = svc.Create(ctx, CreateInput{Code: "SPRING10", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestServiceCreateInactive(t *testing.T) {
	svc, conn := newService(t)
	inactive := false
	created, err := svc.Create(context.Background(), CreateInput{
		Code: "PAUSED", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(3), Active: &inactive,
	})
	require.NoError(t, err)

	var stored models.Coupon
	require.NoError(t, conn.First(&stored, created.ID).Error)
	assert.False(t, stored.Active)
}

func TestServiceCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	zero := 0
	start := time.Now()
	end := start.Add(-time.Hour)

	cases := map[string]CreateInput{
		"bad code":         {Code: "a b", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(1)},
		"bad type":         {Code: "CODE1", DiscountType: "bogus", Value: decimal.NewFromInt(1)},
		"zero value":       {Code: "CODE1", DiscountType: enums.DiscountTypeFixed, Value: decimal.Zero},
		"percentage > 100": {Code: "CODE1", DiscountType: enums.DiscountTypePercentage, Value: decimal.NewFromInt(101)},
		"zero limit":       {Code: "CODE1", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(1), UsageLimit: &zero},
		"window reversed":  {Code: "CODE1", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(1), StartsAt: &start, ExpiresAt: &end},
	}
	for name, input := range cases {
		_, err := svc.Create(context.Background(), input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestIncrementUsageRespectsLimit(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	limit := 2
	coupon := &models.Coupon{Code: "TWICE", DiscountType: enums.DiscountTypeFixed, Value: decimal.NewFromInt(1), UsageLimit: &limit, Active: true}
	require.NoError(t, repo.Create(context.Background(), coupon))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Transaction(func(tx *gorm.DB) error {
				return repo.WithTx(tx).IncrementUsage(context.Background(), coupon.ID)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	}
	assert.Equal(t, limit, succeeded)

	stored, err := repo.FindByID(context.Background(), coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, stored.UsedCount)
}

func TestIncrementUsageMissingCoupon(t *testing.T) {
	repo := NewRepository(testdb.Open(t))
	err := repo.IncrementUsage(context.Background(), 404)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
