package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/cart"
	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/payment"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/notify"
)

var (
	jwtSecret     = []byte("test-jwt-secret")
	gatewaySecret = []byte("test-gateway-secret")
)

// In-memory fakes exercising the real services end to end.

type memProducts struct {
	products map[string]product.Product
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]*coupon.Coupon
}

func newMemCoupons(cs ...*coupon.Coupon) *memCoupons {
	m := &memCoupons{coupons: make(map[string]*coupon.Coupon)}
	for _, c := range cs {
		cp := *c
		m.coupons[c.Code] = &cp
	}
	return m
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrInvalid
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) Redeem(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok || c.Exhausted() {
		return coupon.ErrExhausted
	}
	c.UsedCount++
	return nil
}

func (m *memCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Code]; ok {
		return coupon.ErrExists
	}
	cp := *c
	m.coupons[c.Code] = &cp
	return nil
}

func (m *memCoupons) SetActive(_ context.Context, code string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return coupon.ErrNotFound
	}
	c.Active = active
	return nil
}

func (m *memCoupons) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[code]; !ok {
		return coupon.ErrNotFound
	}
	delete(m.coupons, code)
	return nil
}

func (m *memCoupons) ListCodes(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.coupons))
	for code := range m.coupons {
		codes = append(codes, code)
	}
	return codes, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*order.Order)}
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, prev, next order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != prev {
		return order.ErrStatusConflict
	}
	o.Status = next
	return nil
}

func (m *memOrders) ConfirmPayment(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.PaymentConfirmed {
		return false, nil
	}
	o.PaymentConfirmed = true
	return true, nil
}

type memCarts struct{ cart.Store }

func (memCarts) Clear(context.Context, string) error { return nil }

type stubGateway struct{ n int }

func (g *stubGateway) CreateSession(_ context.Context, receipt string, amount int64) (*order.GatewaySession, error) {
	g.n++
	return &order.GatewaySession{
		ID:       fmt.Sprintf("gw_%d", g.n),
		Amount:   amount,
		Currency: "USD",
	}, nil
}

type nopDispatcher struct{}

func (nopDispatcher) OrderStatusChanged(context.Context, notify.StatusEvent) error { return nil }
func (nopDispatcher) PaymentConfirmed(context.Context, notify.PaymentEvent) error  { return nil }

type env struct {
	router  http.Handler
	coupons *memCoupons
	orders  *memOrders
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &memProducts{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "Waffle", Price: 350},
		"p2": {ID: "p2", Name: "Cake", Price: 700},
	}}
	coupons := newMemCoupons(&coupon.Coupon{
		Code: "SAVE20", Kind: coupon.KindPercentage, Value: 20,
		MinOrderValue: 500, UsageLimit: 1, Active: true,
	})
	orders := newMemOrders()
	carts := memCarts{}

	filter := coupon.NewCodeFilter(1000, 0.001)
	codes, err := coupons.ListCodes(context.Background())
	require.NoError(t, err)
	for _, code := range codes {
		filter.Add(code)
	}

	validator := coupon.NewRepoValidator(coupons, filter)
	svc := order.NewService(products, coupons, validator, orders, carts, &stubGateway{}, nopDispatcher{})
	rec := payment.NewReconciler(orders, coupons, carts, nopDispatcher{}, gatewaySecret)

	h := NewHandler(svc, rec, coupons, validator, filter)
	return &env{
		router:  h.Routes(NewAuthenticator(jwtSecret)),
		coupons: coupons,
		orders:  orders,
	}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub}
	if role != "" {
		claims["role"] = role
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	require.NoError(t, err)
	return s
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func placeBody(couponCode string) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "size": "m", "quantity": 2},
			{"product_id": "p2", "size": "l", "quantity": 1},
		},
		"address": map[string]any{
			"line1": "1 Main St", "city": "Springfield",
			"postal_code": "12345", "country": "US",
		},
		"coupon_code": couponCode,
	}
}

func (e *env) placeOrder(t *testing.T, path, user, couponCode string) placeOrderResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, token(t, user, ""), placeBody(couponCode))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp placeOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuth(t *testing.T) {
	e := newEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/place", "", placeBody(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/place", "not.a.jwt", placeBody(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user token on admin route", func(t *testing.T) {
		rec := e.do(t, http.MethodPatch, "/order/status", token(t, "u1", ""), map[string]any{
			"order_id": "x", "status": "packing",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("status lookup is public", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/order/status/ghost", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPlaceOrderCOD(t *testing.T) {
	e := newEnv(t)
	resp := e.placeOrder(t, "/order/place", "u1", "save20")

	assert.Equal(t, int64(1400), resp.Order.Subtotal)
	assert.Equal(t, int64(280), resp.Order.Discount) // 20% of 1400
	assert.Equal(t, int64(1120), resp.Order.Total)
	assert.Equal(t, "SAVE20", resp.Order.CouponCode)
	assert.Equal(t, order.StatusPlaced, resp.Order.Status)
	assert.Nil(t, resp.Session)

	// COD placement consumed the single-use coupon.
	c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestPlaceOrderRejections(t *testing.T) {
	e := newEnv(t)

	t.Run("empty items", func(t *testing.T) {
		body := placeBody("")
		body["items"] = []map[string]any{}
		rec := e.do(t, http.MethodPost, "/order/place", token(t, "u1", ""), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/place", token(t, "u1", ""), placeBody("BOGUS"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/order/place", bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer "+token(t, "u1", ""))
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exhausted coupon conflicts", func(t *testing.T) {
		e := newEnv(t)
		e.placeOrder(t, "/order/place", "u1", "SAVE20")
		rec := e.do(t, http.MethodPost, "/order/place", token(t, "u2", ""), placeBody("SAVE20"))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestConcurrentPlacementsRespectCouponLimit(t *testing.T) {
	e := newEnv(t)

	// SAVE20 allows one redemption; every checkout shares it. However the
	// placements interleave, the ledger must stop at the limit.
	const attempts = 8

	tokens := make([]string, attempts)
	for i := range tokens {
		tokens[i] = token(t, fmt.Sprintf("u%d", i), "")
	}

	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(placeBody("SAVE20"))
			req := httptest.NewRequest(http.MethodPost, "/order/place", bytes.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+tokens[i])
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code,
			"request %d must either place or conflict", i)
	}

	c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, c.UsageLimit, c.UsedCount, "used count must land exactly on the limit")
}

func TestGatewayFlow(t *testing.T) {
	e := newEnv(t)
	resp := e.placeOrder(t, "/order/place-gateway", "u1", "SAVE20")

	require.NotNil(t, resp.Session)
	assert.Equal(t, resp.Order.Total, resp.Session.Amount)
	assert.NotEmpty(t, resp.Order.GatewayOrderID)
	assert.False(t, resp.Order.PaymentConfirmed)

	// Gateway placement does not consume the coupon yet.
	c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)

	verify := map[string]any{
		"order_id":           resp.Order.ID,
		"gateway_order_id":   resp.Order.GatewayOrderID,
		"gateway_payment_id": "pay_1",
		"signature":          payment.Sign(gatewaySecret, resp.Order.GatewayOrderID, "pay_1"),
	}

	t.Run("bad signature rejected", func(t *testing.T) {
		bad := map[string]any{}
		for k, v := range verify {
			bad[k] = v
		}
		bad["signature"] = payment.Sign([]byte("wrong"), resp.Order.GatewayOrderID, "pay_1")
		rec := e.do(t, http.MethodPost, "/order/verify-gateway", token(t, "u1", ""), bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid proof confirms once", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/verify-gateway", token(t, "u1", ""), verify)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got orderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.PaymentConfirmed)

		// First confirmation redeems the coupon.
		c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsedCount)
	})

	t.Run("replay is a safe no-op", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/verify-gateway", token(t, "u1", ""), verify)
		require.Equal(t, http.StatusOK, rec.Code)

		c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsedCount, "replay must not redeem again")
	})

	t.Run("cod verification rejected for gateway order", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/verify-cod", token(t, "u1", ""), map[string]any{
			"order_id": resp.Order.ID,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestOrderStatusEndpoint(t *testing.T) {
	e := newEnv(t)
	resp := e.placeOrder(t, "/order/place", "u1", "")

	rec := e.do(t, http.MethodGet, "/order/status/"+resp.Order.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got orderStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, resp.Order.ID, got.OrderID)
	assert.Equal(t, order.StatusPlaced, got.Status)
}

func TestCancelEndpoint(t *testing.T) {
	e := newEnv(t)
	resp := e.placeOrder(t, "/order/place", "u1", "")
	body := map[string]any{"order_id": resp.Order.ID}

	t.Run("other user forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/cancel", token(t, "intruder", ""), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner cancels", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/cancel", token(t, "u1", ""), body)
		require.Equal(t, http.StatusOK, rec.Code)

		var got orderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, order.StatusCancelled, got.Status)
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/order/cancel", token(t, "u1", ""), body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestUpdateStatusEndpoint(t *testing.T) {
	e := newEnv(t)
	resp := e.placeOrder(t, "/order/place", "u1", "")
	admin := token(t, "ops", RoleAdmin)

	rec := e.do(t, http.MethodPatch, "/order/status", admin, map[string]any{
		"order_id": resp.Order.ID, "status": "packing",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Skipping ahead is a conflict.
	rec = e.do(t, http.MethodPatch, "/order/status", admin, map[string]any{
		"order_id": resp.Order.ID, "status": "delivered",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPatch, "/order/status", admin, map[string]any{
		"order_id": "ghost", "status": "packing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateCouponEndpoint(t *testing.T) {
	e := newEnv(t)
	user := token(t, "u1", "")

	t.Run("preview does not redeem", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "SAVE20", "amount": 1000,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var got discountResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, int64(200), got.Discount)
		assert.Equal(t, int64(800), got.Total)

		c, err := e.coupons.FindByCode(context.Background(), "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, 0, c.UsedCount)
	})

	t.Run("below minimum conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "SAVE20", "amount": 499,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "BOGUS", "amount": 1000,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "SAVE20", "amount": 0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCouponAdmin(t *testing.T) {
	e := newEnv(t)
	admin := token(t, "ops", RoleAdmin)
	user := token(t, "u1", "")

	t.Run("create and use", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/", admin, map[string]any{
			"code": "newflat", "kind": "flat", "value": 150,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		// Freshly created codes validate immediately (filter updated).
		rec = e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "NEWFLAT", "amount": 1000,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("duplicate code conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/", admin, map[string]any{
			"code": "newflat", "kind": "flat", "value": 999,
		})
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

		// The original coupon is untouched.
		c, err := e.coupons.FindByCode(context.Background(), "NEWFLAT")
		require.NoError(t, err)
		assert.Equal(t, int64(150), c.Value)
	})

	t.Run("percentage above 100 rejected", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/coupon/", admin, map[string]any{
			"code": "TOOMUCH", "kind": "percentage", "value": 150,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deactivated coupon stops validating", func(t *testing.T) {
		rec := e.do(t, http.MethodPatch, "/coupon/SAVE20/toggle", admin, map[string]any{"active": false})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodPost, "/coupon/validate", user, map[string]any{
			"code": "SAVE20", "amount": 1000,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/coupon/SAVE20", admin, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = e.do(t, http.MethodDelete, "/coupon/SAVE20", admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
