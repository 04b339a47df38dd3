package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ordercore/cart"
	"ordercore/domain"
	"ordercore/metrics"
	"ordercore/order"
	"ordercore/pricing"
	"ordercore/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	store  *store.InMemoryStore
	carts  *cart.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	require.NoError(t, st.Create(context.Background(), domain.Product{
		ID: "A", Name: "Notebook", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true,
	}))
	carts := cart.NewMemory()
	svc := order.NewService(st, st, pricing.NewDefaultEngine(), zap.NewNop(), order.WithCart(carts))
	return &fixture{
		router: NewRouter(RouterConfig{Orders: svc, Logger: zap.NewNop(), Metrics: metrics.NewRegistry()}),
		store:  st,
		carts:  carts,
	}
}

func (f *fixture) do(method, path, user, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func addressBody() map[string]string {
	return map[string]string{
		"fullName":     "Ayesha Khan",
		"addressLine1": "12 Mall Road",
		"city":         "Lahore",
		"state":        "Punjab",
		"postalCode":   "54000",
		"phone":        "+923001234567",
	}
}

func createBody(qty int) map[string]any {
	return map[string]any{
		"items":           []map[string]any{{"productId": "A", "quantity": qty}},
		"shippingAddress": addressBody(),
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateOrder_Created(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/orders", "u1", "", createBody(3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	o := decode[orderResponse](t, rec)
	assert.Equal(t, "30.00", o.Subtotal)
	assert.Equal(t, "1.50", o.Tax)
	assert.Equal(t, "0.00", o.ShippingCost)
	assert.Equal(t, "31.50", o.Total)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "10.00", o.Items[0].Price)
	assert.Equal(t, "30.00", o.Items[0].ItemTotal)
	assert.Equal(t, "PK", o.ShippingAddress.Country)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "31.50", raw["total"])
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty", map[string]any{"items": []any{}, "shippingAddress": addressBody()}, http.StatusBadRequest, "EMPTY_ORDER"},
		{"bad quantity", createBody(0), http.StatusBadRequest, "INVALID_ORDER"},
		{"insufficient", createBody(9), http.StatusBadRequest, "INSUFFICIENT_STOCK"},
		{"unknown product", map[string]any{
			"items":           []map[string]any{{"productId": "zzz", "quantity": 1}},
			"shippingAddress": addressBody(),
		}, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"missing address", map[string]any{"items": []map[string]any{{"productId": "A", "quantity": 1}}}, http.StatusBadRequest, "INVALID_ORDER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/orders", "u1", "", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			e := decode[errorResponse](t, rec)
			assert.False(t, e.Success)
			assert.Equal(t, tc.code, e.ErrorCode)
			assert.NotEmpty(t, e.Message)
		})
	}

	p, err := f.store.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{nope"))
	req.Header.Set(HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decode[errorResponse](t, rec).ErrorCode)
}

func TestOrders_RequireIdentity(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/orders", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorResponse](t, rec).ErrorCode)
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	created := decode[orderResponse](t, f.do(http.MethodPost, "/api/v1/orders", "u1", "", createBody(1)))
	f.do(http.MethodPost, "/api/v1/orders", "u1", "", createBody(1))

	rec := f.do(http.MethodGet, "/api/v1/orders/"+created.ID, "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[orderResponse](t, rec).ID)

	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID, "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", decode[errorResponse](t, rec).ErrorCode)

	rec = f.do(http.MethodGet, "/api/v1/orders?page=1&pageSize=1", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[orderListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 2, list.Pages)
	assert.True(t, list.HasNext)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].TotalItems)
	assert.Equal(t, "10.50", list.Items[0].Total)

	rec = f.do(http.MethodGet, "/api/v1/orders", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.DefaultPageSize, decode[orderListResponse](t, rec).PageSize)

	for _, page := range []string{"3", "922337203685477580"} {
		rec = f.do(http.MethodGet, "/api/v1/orders?pageSize=20&page="+page, "u1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, "page %s", page)
		far := decode[orderListResponse](t, rec)
		assert.Empty(t, far.Items, "page %s", page)
		assert.Equal(t, 2, far.Total)
		assert.Equal(t, 1, far.Pages)
		assert.False(t, far.HasNext)
	}

	rec = f.do(http.MethodGet, "/api/v1/orders?page=abc", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/orders?page=0", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_AdminOnly(t *testing.T) {
	f := newFixture(t)
	created := decode[orderResponse](t, f.do(http.MethodPost, "/api/v1/orders", "u1", "", createBody(1)))
	path := "/api/v1/orders/" + created.ID + "/status"

	rec := f.do(http.MethodPatch, path, "u1", "", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorResponse](t, rec).ErrorCode)

	rec = f.do(http.MethodPatch, path, "ops", "admin", map[string]string{"status": "Confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusConfirmed, decode[orderResponse](t, rec).Status)

	rec = f.do(http.MethodPatch, path, "ops", "admin", map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorResponse](t, rec).ErrorCode)

	rec = f.do(http.MethodPatch, path, "ops", "admin", map[string]string{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ORDER", decode[errorResponse](t, rec).ErrorCode)

	rec = f.do(http.MethodPatch, "/api/v1/orders/missing/status", "ops", "admin", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderFromCart(t *testing.T) {
	f := newFixture(t)
	f.carts.Put("u1", domain.CartLine{ProductID: "A", Quantity: 2, Price: decimal.RequireFromString("0.01")})

	rec := f.do(http.MethodPost, "/api/v1/orders/from-cart", "u1", "", map[string]any{"shippingAddress": addressBody()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "20.00", decode[orderResponse](t, rec).Subtotal)

	rec = f.do(http.MethodPost, "/api/v1/orders/from-cart", "u1", "", map[string]any{"shippingAddress": addressBody()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMPTY_ORDER", decode[errorResponse](t, rec).ErrorCode)
}

type unavailableOrders struct{ OrderService }

func (unavailableOrders) ListOrders(context.Context, string, int, int) (order.Page, error) {
	return order.Page{}, domain.NewDependencyUnavailableError("order store", assert.AnError)
}

func (unavailableOrders) GetOrder(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, assert.AnError
}

func TestServerErrorsHideDetail(t *testing.T) {
	f := &fixture{router: NewRouter(RouterConfig{Orders: unavailableOrders{}})}

	rec := f.do(http.MethodGet, "/api/v1/orders", "u1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	e := decode[errorResponse](t, rec)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", e.ErrorCode)
	assert.NotContains(t, e.Message, assert.AnError.Error())

	rec = f.do(http.MethodGet, "/api/v1/orders/x", "u1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	e = decode[errorResponse](t, rec)
	assert.Equal(t, "INTERNAL_ERROR", e.ErrorCode)
	assert.Equal(t, "internal server error", e.Message)
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/health", "", "", nil).Code)

	f.do(http.MethodPost, "/api/v1/orders", "u1", "", createBody(1))
	rec := f.do(http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ordercore_http_requests_total{handler="/api/v1/orders",status="201"} 1`)
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}
