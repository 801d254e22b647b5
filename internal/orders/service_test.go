package orders

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/db"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
	"github.com/angelmondragon/smm-storefront/pkg/testdb"
)

func newTestService(t *testing.T) (Service, Repository, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, db.Wrap(conn), logger.Nop())
	require.NoError(t, err)
	return svc, repo, conn
}

func seedOrder(t *testing.T, repo Repository, number string, mutate func(*models.Order)) *models.Order {
	t.Helper()
	email := "buyer@example.com"
	order := &models.Order{
		OrderNumber:   number,
		PackageID:     1,
		GuestEmail:    &email,
		Amount:        decimal.RequireFromString("10.00"),
		Discount:      decimal.Zero,
		TargetLink:    "https://youtu.be/abcdefgh",
		Quantity:      100,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestPatchWritesAuditAndStampsCompletion(t *testing.T) {
	svc, repo, conn := newTestService(t)
	order := seedOrder(t, repo, "SMM-260101-AAAAAA", nil)

	status := enums.OrderStatusCompleted
	start := 40
	updated, err := svc.Patch(context.Background(), "ops@example.com", order.ID, PatchInput{Status: &status, StartCount: &start})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, updated.Status)
	assert.Equal(t, 40, updated.StartCount)
	require.NotNil(t, updated.CompletedAt)

	var logs []models.AuditLog
	require.NoError(t, conn.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "ops@example.com", logs[0].Actor)
	assert.Equal(t, auditActionPatch, logs[0].Action)

	var before models.Order
	require.NoError(t, json.Unmarshal(logs[0].Before, &before))
	assert.Equal(t, enums.OrderStatusPending, before.Status)
}

func TestPatchRejectsUnknownStatus(t *testing.T) {
	svc, repo, conn := newTestService(t)
	order := seedOrder(t, repo, "SMM-260101-BBBBBB", nil)

	bogus := enums.OrderStatus("Complete")
	_, err := svc.Patch(context.Background(), "ops", order.ID, PatchInput{Status: &bogus})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, conn.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPatchMissingOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	count := 5
	_, err := svc.Patch(context.Background(), "ops", 999, PatchInput{CurrentCount: &count})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteBlockedByPaymentOrProviderID(t *testing.T) {
	svc, repo, conn := newTestService(t)
	ctx := context.Background()

	paid := seedOrder(t, repo, "SMM-260101-CCCCCC", nil)
	require.NoError(t, conn.Create(&models.Payment{
		OrderID:  paid.ID,
		Provider: enums.PaymentProviderDemo,
		Amount:   paid.Amount,
		Currency: "usd",
		Status:   enums.PaymentStatusPending,
	}).Error)
	err := svc.Delete(ctx, paid.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	external := "P-1"
	sent := seedOrder(t, repo, "SMM-260101-DDDDDD", func(o *models.Order) { o.ProviderOrderID = &external })
	err = svc.Delete(ctx, sent.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	free := seedOrder(t, repo, "SMM-260101-EEEEEE", nil)
	require.NoError(t, svc.Delete(ctx, free.ID))
	_, err = repo.FindByID(ctx, free.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteSiblingBlockedByGroupPayment(t *testing.T) {
	svc, repo, conn := newTestService(t)
	group := uuid.New()
	first := seedOrder(t, repo, "SMM-260101-FFFFFF", func(o *models.Order) { o.GroupID = &group })
	second := seedOrder(t, repo, "SMM-260101-FFFFFF", func(o *models.Order) {
		o.GroupID = &group
		o.SiblingIndex = 1
	})
	require.NoError(t, conn.Create(&models.Payment{
		OrderID:  first.ID,
		Provider: enums.PaymentProviderDemo,
		Amount:   decimal.RequireFromString("20.00"),
		Currency: "usd",
		Status:   enums.PaymentStatusPending,
	}).Error)

	err := svc.Delete(context.Background(), second.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestGetReturnsSiblings(t *testing.T) {
	svc, repo, _ := newTestService(t)
	group := uuid.New()
	first := seedOrder(t, repo, "SMM-260101-GGGGGG", func(o *models.Order) { o.GroupID = &group })
	seedOrder(t, repo, "SMM-260101-GGGGGG", func(o *models.Order) {
		o.GroupID = &group
		o.SiblingIndex = 1
	})

	detail, err := svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, detail.Siblings, 2)
	assert.Equal(t, 0, detail.Siblings[0].SiblingIndex)
	assert.Equal(t, 1, detail.Siblings[1].SiblingIndex)
}

func TestListPagesByCursorAndFilters(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedOrder(t, repo, "SMM-260101-H0000"+string(rune('0'+i)), nil)
	}
	seedOrder(t, repo, "SMM-260101-JJJJJJ", func(o *models.Order) { o.Status = enums.OrderStatusCompleted })

	page, err := svc.List(ctx, ListFilters{}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.Greater(t, page.Orders[0].ID, page.Orders[1].ID)

	next, err := svc.List(ctx, ListFilters{}, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Orders, 2)
	assert.Empty(t, next.NextCursor)

	completed := enums.OrderStatusCompleted
	filtered, err := svc.List(ctx, ListFilters{Status: &completed}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, "SMM-260101-JJJJJJ", filtered.Orders[0].OrderNumber)

	_, err = svc.List(ctx, ListFilters{}, pagination.Params{Cursor: "!!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListDueForSync(t *testing.T) {
	_, repo, _ := newTestService(t)
	external := "EXT-1"
	due := seedOrder(t, repo, "SMM-260101-KKKKKK", func(o *models.Order) {
		o.ProviderOrderID = &external
		o.Status = enums.OrderStatusProcessing
	})
	seedOrder(t, repo, "SMM-260101-LLLLLL", func(o *models.Order) { o.Status = enums.OrderStatusProcessing })
	seedOrder(t, repo, "SMM-260101-MMMMMM", func(o *models.Order) {
		o.ProviderOrderID = &external
		o.Status = enums.OrderStatusCompleted
	})

	rows, err := repo.ListDueForSync(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)

	rows, err = repo.ListDueForSync(context.Background(), due.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
