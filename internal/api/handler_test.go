package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/commission"
	"earnings-service/internal/models"
	"earnings-service/internal/paymentprovider"
	"earnings-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	result    *service.WebhookResult
	err       error
	payload   string
	signature string
	deadline  bool
}

func (f *fakeDispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error) {
	f.payload = string(payload)
	f.signature = signature
	_, f.deadline = ctx.Deadline()
	return f.result, f.err
}

type fakeQueries struct {
	order    *models.Order
	items    []models.OrderItem
	earnings *service.SellerEarnings
	err      error
}

func (f *fakeQueries) GetOrder(context.Context, int64) (*models.Order, []models.OrderItem, error) {
	return f.order, f.items, f.err
}

func (f *fakeQueries) GetSellerEarnings(context.Context, string) (*service.SellerEarnings, error) {
	return f.earnings, f.err
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func TestWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		result   *service.WebhookResult
		err      error
		wantCode int
	}{
		{name: "processed", result: &service.WebhookResult{Status: service.StatusProcessed}, wantCode: http.StatusOK},
		{name: "rejected session is acknowledged", result: &service.WebhookResult{Status: service.StatusRejected}, wantCode: http.StatusOK},
		{name: "bad signature", err: apperr.New(apperr.KindAuthentication, "op", "bad"), wantCode: http.StatusBadRequest},
		{name: "unconfigured", err: apperr.New(apperr.KindUnconfigured, "op", "no key"), wantCode: http.StatusServiceUnavailable},
		{name: "internal", err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{result: tt.result, err: tt.err}
			router := newRouter(NewHandler(d, &fakeQueries{}, time.Second, nil))

			req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set(paymentprovider.SignatureHeader, "t=1,v1=abc")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, `{"id":"evt_1"}`, d.payload)
			assert.Equal(t, "t=1,v1=abc", d.signature)
			assert.True(t, d.deadline)
		})
	}
}

func TestWebhookResponseBody(t *testing.T) {
	d := &fakeDispatcher{result: &service.WebhookResult{
		EventID:   "evt_1",
		EventType: paymentprovider.TypeCheckoutSessionCompleted,
		SessionID: "cs_1",
		OrderID:   7,
		Status:    service.StatusProcessed,
		Items:     []service.ItemResult{{LineItemID: "li_a", Status: service.ItemSkipped, Error: "no seller"}},
	}}
	router := newRouter(NewHandler(d, &fakeQueries{}, time.Second, nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body service.WebhookResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.OrderID)
	require.Len(t, body.Items, 1)
	assert.Equal(t, service.ItemSkipped, body.Items[0].Status)
}

func TestGetOrder(t *testing.T) {
	q := &fakeQueries{
		order: &models.Order{ID: 1, SessionID: "cs_1"},
		items: []models.OrderItem{{ID: 2, OrderID: 1, CommissionTier: "Bronze"}},
	}
	router := newRouter(NewHandler(&fakeDispatcher{}, q, time.Second, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"commission_tier":"Bronze"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.err = apperr.New(apperr.KindNotFound, "store.GetOrderByID", "order not found: 9")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSellerEarnings(t *testing.T) {
	q := &fakeQueries{earnings: &service.SellerEarnings{
		SellerID:   "seller-1",
		SalesTotal: 1050,
		NextTier:   commission.ResolveTier(1050),
		Wallet:     &models.Wallet{UserID: "seller-1", Balance: 700},
	}}
	router := newRouter(NewHandler(&fakeDispatcher{}, q, time.Second, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sellers/seller-1/earnings", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1050), body["sales_total"])
	assert.Equal(t, "Bronze", body["next_sale_tier"].(map[string]interface{})["name"])
}

func TestReadiness(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	router := newRouter(NewHandler(&fakeDispatcher{}, &fakeQueries{}, time.Second,
		map[string]Pinger{"postgres": healthy, "redis": healthy}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	router = newRouter(NewHandler(&fakeDispatcher{}, &fakeQueries{}, time.Second,
		map[string]Pinger{"postgres": healthy, "redis": broken}))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestHealth(t *testing.T) {
	router := newRouter(NewHandler(&fakeDispatcher{}, &fakeQueries{}, time.Second, nil))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
