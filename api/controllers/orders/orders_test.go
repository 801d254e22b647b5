package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smm-storefront/api/middleware"
	internalorders "github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/reconcile"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/pagination"
)

type stubOrdersService struct {
	detail      *internalorders.OrderDetail
	listFilters internalorders.ListFilters
	listParams  pagination.Params
	patchActor  string
	patchInput  internalorders.PatchInput
	deleteErr   error
	deleted     []uint64
}

func (s *stubOrdersService) Get(_ context.Context, id uint64) (*internalorders.OrderDetail, error) {
	if s.detail == nil || s.detail.Order.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.detail, nil
}

func (s *stubOrdersService) List(_ context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
	s.listFilters = filters
	s.listParams = params
	return &internalorders.OrderList{Orders: []models.Order{{ID: 3}}, NextCursor: "next"}, nil
}

func (s *stubOrdersService) Patch(_ context.Context, actor string, id uint64, input internalorders.PatchInput) (*models.Order, error) {
	s.patchActor = actor
	s.patchInput = input
	order := &models.Order{ID: id, Status: enums.OrderStatusPending}
	if input.Status != nil {
		order.Status = *input.Status
	}
	return order, nil
}

func (s *stubOrdersService) Delete(_ context.Context, id uint64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubRefunder struct {
	refunded bool
	err      error
	actor    string
}

func (s *stubRefunder) Refund(_ context.Context, actor string, _ uint64) (bool, error) {
	s.actor = actor
	return s.refunded, s.err
}

type stubResender struct{ actor string }

func (s *stubResender) Resend(_ context.Context, actor string, orderID uint64) (*models.Order, error) {
	s.actor = actor
	return &models.Order{ID: orderID, Status: enums.OrderStatusProcessing}, nil
}

type stubSyncer struct{}

func (stubSyncer) SyncByID(_ context.Context, id uint64) (*models.Order, reconcile.Outcome, error) {
	return &models.Order{ID: id, Status: enums.OrderStatusCompleted}, reconcile.OutcomeTransitioned, nil
}

func newRouter(svc internalorders.Service, refunder Refunder, resender Resender, syncer Syncer) http.Handler {
	logg := logger.Nop()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithActor(req.Context(), "admin@example.com", "admin")))
		})
	})
	r.Get("/admin/orders", List(svc, logg))
	r.Get("/admin/orders/{orderId}", Detail(svc, logg))
	r.Patch("/admin/orders/{orderId}", Patch(svc, logg))
	r.Delete("/admin/orders/{orderId}", Delete(svc, logg))
	r.Post("/admin/orders/{orderId}/refund", Refund(refunder, logg))
	r.Post("/admin/orders/{orderId}/resend", Resend(resender, logg))
	r.Post("/admin/orders/{orderId}/sync", Sync(syncer, logg))
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestListParsesFiltersAndCursor(t *testing.T) {
	svc := &stubOrdersService{}
	resp := serve(newRouter(svc, nil, nil, nil), http.MethodGet, "/admin/orders?status=processing&payment_status=completed&order_number=smm-1&limit=10&cursor=abc", "")

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.listFilters.Status)
	assert.Equal(t, enums.OrderStatusProcessing, *svc.listFilters.Status)
	require.NotNil(t, svc.listFilters.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, *svc.listFilters.PaymentStatus)
	assert.Equal(t, "SMM-1", svc.listFilters.OrderNumber)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.listParams)

	var list internalorders.OrderList
	decodeData(t, resp, &list)
	assert.Equal(t, "next", list.NextCursor)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	resp := serve(newRouter(&stubOrdersService{}, nil, nil, nil), http.MethodGet, "/admin/orders?status=shipped", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDetailValidatesIDAndMapsNotFound(t *testing.T) {
	svc := &stubOrdersService{detail: &internalorders.OrderDetail{Order: models.Order{ID: 5}}}
	h := newRouter(svc, nil, nil, nil)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/admin/orders/5", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/admin/orders/6", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/admin/orders/abc", "").Code)
}

func TestPatchPassesActorAndParsedStatus(t *testing.T) {
	svc := &stubOrdersService{}
	resp := serve(newRouter(svc, nil, nil, nil), http.MethodPatch, "/admin/orders/8", `{"status":"completed","current_count":900}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "admin@example.com", svc.patchActor)
	require.NotNil(t, svc.patchInput.Status)
	assert.Equal(t, enums.OrderStatusCompleted, *svc.patchInput.Status)
	require.NotNil(t, svc.patchInput.CurrentCount)
	assert.Equal(t, 900, *svc.patchInput.CurrentCount)
	assert.Nil(t, svc.patchInput.StartCount)
}

func TestPatchRejectsInvalidStatus(t *testing.T) {
	svc := &stubOrdersService{}
	resp := serve(newRouter(svc, nil, nil, nil), http.MethodPatch, "/admin/orders/8", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.patchActor)
}

func TestDeleteBlockedIsStateConflict(t *testing.T) {
	svc := &stubOrdersService{}
	h := newRouter(svc, nil, nil, nil)
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/admin/orders/4", "").Code)
	assert.Equal(t, []uint64{4}, svc.deleted)

	svc.deleteErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order has payment history")
	assert.Equal(t, http.StatusUnprocessableEntity, serve(h, http.MethodDelete, "/admin/orders/4", "").Code)
}

func TestRefundReportsDeclineWithoutError(t *testing.T) {
	refunder := &stubRefunder{refunded: false}
	resp := serve(newRouter(nil, refunder, nil, nil), http.MethodPost, "/admin/orders/11/refund", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "admin@example.com", refunder.actor)
	var body refundResponse
	decodeData(t, resp, &body)
	assert.Equal(t, refundResponse{OrderID: 11, Refunded: false}, body)
}

func TestRefundGatewayErrorPropagates(t *testing.T) {
	refunder := &stubRefunder{err: pkgerrors.New(pkgerrors.CodeDependency, "stripe refund failed")}
	resp := serve(newRouter(nil, refunder, nil, nil), http.MethodPost, "/admin/orders/11/refund", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestResendAndSync(t *testing.T) {
	resender := &stubResender{}
	h := newRouter(nil, nil, resender, stubSyncer{})

	resp := serve(h, http.MethodPost, "/admin/orders/12/resend", "")
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "admin@example.com", resender.actor)

	resp = serve(h, http.MethodPost, "/admin/orders/12/sync", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Outcome reconcile.Outcome `json:"outcome"`
		Order   models.Order      `json:"order"`
	}
	decodeData(t, resp, &body)
	assert.Equal(t, reconcile.OutcomeTransitioned, body.Outcome)
	assert.Equal(t, enums.OrderStatusCompleted, body.Order.Status)
}

func TestHandlersWithoutServices(t *testing.T) {
	h := newRouter(nil, nil, nil, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/orders"},
		{http.MethodGet, "/admin/orders/1"},
		{http.MethodPost, "/admin/orders/1/refund"},
		{http.MethodPost, "/admin/orders/1/resend"},
		{http.MethodPost, "/admin/orders/1/sync"},
	} {
		assert.Equal(t, http.StatusInternalServerError, serve(h, tc.method, tc.path, "").Code, tc.path)
	}
}
