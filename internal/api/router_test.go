package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngleee/thesis/internal/auth"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/inventory"
	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/domain/user"
	"github.com/youngleee/thesis/internal/infrastructure/store"
	"github.com/youngleee/thesis/internal/infrastructure/store/mocks"
	"github.com/youngleee/thesis/internal/metrics"
	"github.com/youngleee/thesis/internal/realtime"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	handler  http.Handler
	tokens   *auth.Tokens
	notifier *mocks.MockNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	catalog := store.NewMemoryCatalog(product.Seed()...)
	notifier := &mocks.MockNotifier{}
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	carts := cart.NewService(store.NewMemoryCartStore(catalog), catalog, cart.WithNotifier(notifier))
	inv := inventory.NewService(catalog, inventory.WithNotifier(notifier))
	tokens := auth.NewTokens("test-secret-key-for-testing-purposes", 15*time.Minute)
	users := user.NewService(store.NewMemoryUserStore(), auth.NewHasher(bcrypt.MinCost))
	hub := realtime.NewHub()

	router := NewRouter(RouterConfig{
		Handlers:     NewHandlers(carts, inv, hub, time.Second, nil),
		AuthHandlers: NewAuthHandlers(users, tokens, nil),
		Tokens:       tokens,
		Metrics:      m,
		Gatherer:     reg,
		CORSOrigins:  []string{"*"},
	})
	return &testServer{handler: router, tokens: tokens, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) bearer(t *testing.T, userID string) []string {
	t.Helper()
	token, _, err := s.tokens.Issue(userID, userID+"@example.com", user.RoleCustomer)
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + token}
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, len(product.Seed()))

	rec = s.do(t, http.MethodGet, "/api/products/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(1), p.ID)

	rec = s.do(t, http.MethodGet, "/api/products/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", decodeMessage(t, rec))

	rec = s.do(t, http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddToCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cart", `{"productId": 1, "quantity": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeCart(t, rec)
	assert.Equal(t, "Product added to cart", resp.Message)
	require.Len(t, resp.Cart, 1)
	assert.Equal(t, 2, resp.Cart[0].Quantity)

	// String ids and the default quantity merge into the same line.
	rec = s.do(t, http.MethodPost, "/api/cart", `{"productId": "1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp = decodeCart(t, rec)
	require.Len(t, resp.Cart, 1)
	assert.Equal(t, 3, resp.Cart[0].Quantity)

	assert.Len(t, s.notifier.CartCalls(), 2)
}

func TestAddToCart_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"malformed body", `{`, http.StatusBadRequest, "Invalid request body"},
		{"missing product", `{"quantity": 1}`, http.StatusBadRequest, "Product ID is required"},
		{"non-numeric product", `{"productId": "abc"}`, http.StatusBadRequest, "Invalid request body"},
		{"zero quantity", `{"productId": 1, "quantity": 0}`, http.StatusBadRequest, "quantity must be at least 1"},
		{"unknown product", `{"productId": 999}`, http.StatusNotFound, "product not found"},
		{"quantity above maximum", `{"productId": 1, "quantity": 2147483648}`, http.StatusBadRequest, "quantity exceeds the maximum per item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/cart", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeMessage(t, rec))
			assert.Empty(t, s.notifier.CartCalls())
		})
	}
}

func TestGetCart_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCart_OwnersAreIsolated(t *testing.T) {
	s := newTestServer(t)
	alice := s.bearer(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/cart", `{"productId": 2}`, alice...)
	require.Equal(t, http.StatusCreated, rec.Code)
	lineID := decodeCart(t, rec).Cart[0].ID

	// Anonymous sees nothing and cannot touch alice's line.
	rec = s.do(t, http.MethodGet, "/api/cart", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/cart/"+itoa(lineID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cart", "", alice...)
	var items []cart.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)
}

func TestUpdateCartItem(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cart", `{"productId": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/cart/" + itoa(decodeCart(t, rec).Cart[0].ID)

	rec = s.do(t, http.MethodPut, path, `{"quantity": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Equal(t, "Cart updated", resp.Message)
	assert.Equal(t, 5, resp.Cart[0].Quantity)

	rec = s.do(t, http.MethodPut, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, `{"quantity": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Cart)

	rec = s.do(t, http.MethodPut, path, `{"quantity": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "item not found in cart", decodeMessage(t, rec))
}

func TestRemoveAndClearCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cart", `{"productId": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	lineID := decodeCart(t, rec).Cart[0].ID
	s.do(t, http.MethodPost, "/api/cart", `{"productId": 2}`)

	rec = s.do(t, http.MethodDelete, "/api/cart/"+itoa(lineID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Equal(t, "Item removed from cart", resp.Message)
	require.Len(t, resp.Cart, 1)
	assert.Equal(t, int64(2), resp.Cart[0].ProductID)

	rec = s.do(t, http.MethodDelete, "/api/cart/"+itoa(lineID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cart cleared", decodeMessage(t, rec))

	rec = s.do(t, http.MethodGet, "/api/cart", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSetStock(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/products/1/stock", `{"in_stock": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var p product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.False(t, p.InStock)

	calls := s.notifier.AvailabilityCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, mocks.AvailabilityCall{ProductID: 1, InStock: false}, calls[0])

	rec = s.do(t, http.MethodPut, "/api/products/1/stock", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/products/999/stock", `{"in_stock": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugCart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/cart", `{"productId": 1}`)

	rec := s.do(t, http.MethodGet, "/api/debug/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "anonymous", body["owner"])
	assert.Equal(t, float64(1), body["cartLength"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register",
		`{"email": "Alice@Example.com", "password": "password123", "name": "Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register",
		`{"email": "alice@example.com", "password": "password123", "name": "Alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", `{"email": "alice@example.com", "password": "wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", `{"email": "alice@example.com", "password": "password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "access_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// The cookie scopes the cart to the user.
	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(`{"productId": 3}`))
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusCreated, out.Code)

	carts := s.notifier.CartCalls()
	require.Len(t, carts, 1)
	assert.True(t, strings.HasPrefix(carts[0].Owner, "user:"))

	rec = s.do(t, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodOptions, "/api/cart", "",
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", http.MethodPost,
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeMessage(t, rec))

	s.do(t, http.MethodGet, "/api/products", "")
	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
