package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orders-service/internal/auth"
	"github.com/vladislavdragonenkov/orders-service/internal/domain"
	"github.com/vladislavdragonenkov/orders-service/internal/service/cart"
	"github.com/vladislavdragonenkov/orders-service/internal/service/checkout"
	"github.com/vladislavdragonenkov/orders-service/internal/service/email"
	"github.com/vladislavdragonenkov/orders-service/internal/service/product"
	"github.com/vladislavdragonenkov/orders-service/internal/storage/memory"
)

var testSecret = []byte("rest-handler-test-secret")

type testEnv struct {
	router   *gin.Engine
	carts    *cart.MockService
	products *product.MockService
	emails   *email.MockService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	idempotency := memory.NewIdempotencyRepository()

	carts := cart.NewMockService()
	products := product.NewMockService(nil)
	emails := email.NewMockService()

	orchestrator := checkout.NewWithoutMetrics(orders, outbox, carts, products, emails, nil)
	handler := NewOrderHandler(orders, orchestrator, idempotency, testSecret, nil)

	router := NewRouter(RouterConfig{
		Handler: handler,
		Secret:  testSecret,
	})

	return &testEnv{
		router:   router,
		carts:    carts,
		products: products,
		emails:   emails,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.Sign(testSecret, userID, "Test User", 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func decodeOrder(t *testing.T, recorder *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var order orderResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode order response: %v (body=%s)", err, recorder.Body.String())
	}
	return order
}

func createTestOrder(t *testing.T, env *testEnv, token string) orderResponse {
	t.Helper()
	recorder := env.do(t, http.MethodPost, "/orders", token, createOrderRequest{
		Address: "Lenina 1, Moscow",
		Products: []orderItemPayload{
			{ProductID: "product-1", Qty: 2, PriceMinor: 1000},
			{ProductID: "product-2", Qty: 1, PriceMinor: 500},
		},
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	return decodeOrder(t, recorder)
}

func TestOrderHandler_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/orders/myorders"},
		{http.MethodGet, "/orders/myorders/some-id"},
		{http.MethodPost, "/orders"},
		{http.MethodPatch, "/orders/some-id"},
		{http.MethodDelete, "/orders/some-id"},
		{http.MethodPost, "/orders/process-order"},
	} {
		recorder := env.do(t, route.method, route.path, "", nil, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: status=%d want=401", route.method, route.path, recorder.Code)
		}
	}
}

func TestOrderHandler_GenerateTokenIsUsable(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/orders/generate-token", "", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("generate-token: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	var response tokenResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if response.Token == "" {
		t.Fatal("expected non-empty token")
	}

	listRecorder := env.do(t, http.MethodGet, "/orders/myorders", response.Token, nil, nil)
	if listRecorder.Code != http.StatusNotFound {
		t.Fatalf("myorders with generated token: status=%d want=404", listRecorder.Code)
	}
}

func TestOrderHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	created := createTestOrder(t, env, token)
	if created.ID == "" || created.Number == "" {
		t.Fatalf("created order has empty id or number: %+v", created)
	}
	if created.UserID != "user-1" {
		t.Fatalf("unexpected owner: got=%q want=user-1", created.UserID)
	}
	if created.TotalMinor != 2500 {
		t.Fatalf("unexpected total: got=%d want=2500", created.TotalMinor)
	}

	recorder := env.do(t, http.MethodGet, "/orders/myorders/"+created.ID, token, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	fetched := decodeOrder(t, recorder)
	if len(fetched.Items) != 2 {
		t.Fatalf("unexpected item count: got=%d want=2", len(fetched.Items))
	}
	if fetched.Items[0].ProductID != "product-1" || fetched.Items[1].ProductID != "product-2" {
		t.Fatalf("items out of order: %+v", fetched.Items)
	}
}

func TestOrderHandler_CreateSingleProductShape(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	recorder := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"address":     "Lenina 1, Moscow",
		"product":     "product-9",
		"qty":         3,
		"price_minor": 700,
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	created := decodeOrder(t, recorder)
	if len(created.Items) != 1 || created.Items[0].ProductID != "product-9" {
		t.Fatalf("unexpected items: %+v", created.Items)
	}
	if created.TotalMinor != 2100 {
		t.Fatalf("unexpected total: got=%d want=2100", created.TotalMinor)
	}
}

func TestOrderHandler_CreateKeepsClientOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	recorder := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"order_number": "ORD-20260829-42",
		"address":      "Lenina 1, Moscow",
		"products": []map[string]any{
			{"product_id": "product-1", "qty": 1, "price_minor": 900},
		},
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	created := decodeOrder(t, recorder)
	if created.Number != "ORD-20260829-42" {
		t.Fatalf("client order number was not kept: got=%q", created.Number)
	}
}

func TestOrderHandler_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	cases := []struct {
		name string
		body any
	}{
		{"no items", map[string]any{"address": "Lenina 1"}},
		{"zero qty", map[string]any{
			"address":  "Lenina 1",
			"products": []map[string]any{{"product_id": "p1", "qty": 0, "price_minor": 100}},
		}},
		{"negative price", map[string]any{
			"address":  "Lenina 1",
			"products": []map[string]any{{"product_id": "p1", "qty": 1, "price_minor": -5}},
		}},
	}

	for _, tc := range cases {
		recorder := env.do(t, http.MethodPost, "/orders", token, tc.body, nil)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want=400 body=%s", tc.name, recorder.Code, recorder.Body.String())
		}
	}
}

func TestOrderHandler_ListMyOrders(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	recorder := env.do(t, http.MethodGet, "/orders/myorders", token, nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("empty list: status=%d want=404", recorder.Code)
	}

	first := createTestOrder(t, env, token)
	second := createTestOrder(t, env, token)

	recorder = env.do(t, http.MethodGet, "/orders/myorders", token, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list orders: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	var orders []orderResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("unexpected list size: got=%d want=2", len(orders))
	}
	if orders[0].ID != first.ID || orders[1].ID != second.ID {
		t.Fatalf("list is not in creation order: %+v", orders)
	}
}

func TestOrderHandler_OwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := signTestToken(t, "user-a")
	otherToken := signTestToken(t, "user-b")

	created := createTestOrder(t, env, ownerToken)

	if code := env.do(t, http.MethodGet, "/orders/myorders/"+created.ID, otherToken, nil, nil).Code; code != http.StatusForbidden {
		t.Fatalf("get foreign order: status=%d want=403", code)
	}
	patch := map[string]any{"address": "Tverskaya 5"}
	if code := env.do(t, http.MethodPatch, "/orders/"+created.ID, otherToken, patch, nil).Code; code != http.StatusForbidden {
		t.Fatalf("patch foreign order: status=%d want=403", code)
	}
	if code := env.do(t, http.MethodDelete, "/orders/"+created.ID, otherToken, nil, nil).Code; code != http.StatusForbidden {
		t.Fatalf("delete foreign order: status=%d want=403", code)
	}

	if code := env.do(t, http.MethodGet, "/orders/myorders/missing-id", ownerToken, nil, nil).Code; code != http.StatusNotFound {
		t.Fatalf("get missing order: status=%d want=404", code)
	}
}

func TestOrderHandler_UpdateOrder(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	created := createTestOrder(t, env, token)

	address := "Tverskaya 5, Moscow"
	recorder := env.do(t, http.MethodPatch, "/orders/"+created.ID, token, updateOrderRequest{
		Address: &address,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch address: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	updated := decodeOrder(t, recorder)
	if updated.Address != address {
		t.Fatalf("address not updated: got=%q", updated.Address)
	}
	if updated.ID != created.ID {
		t.Fatalf("order id changed on update: got=%q want=%q", updated.ID, created.ID)
	}
	if len(updated.Items) != len(created.Items) {
		t.Fatalf("address-only patch changed items: got=%d want=%d", len(updated.Items), len(created.Items))
	}

	recorder = env.do(t, http.MethodPatch, "/orders/"+created.ID, token, map[string]any{
		"products": []map[string]any{
			{"id": created.Items[0].ID, "product_id": "product-1", "qty": 5, "price_minor": 1000},
			{"product_id": "product-3", "qty": 1, "price_minor": 300},
		},
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch items: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	updated = decodeOrder(t, recorder)
	if updated.Address != address {
		t.Fatalf("items patch reset address: got=%q", updated.Address)
	}
	if len(updated.Items) != 3 {
		t.Fatalf("unexpected item count after upsert: got=%d want=3", len(updated.Items))
	}
}

func TestOrderHandler_UpdateValidation(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	created := createTestOrder(t, env, token)

	cases := []struct {
		name string
		item map[string]any
	}{
		{
			name: "negative qty",
			item: map[string]any{"id": created.Items[0].ID, "product_id": "product-1", "qty": -5, "price_minor": 1000},
		},
		{
			name: "negative price",
			item: map[string]any{"id": created.Items[0].ID, "product_id": "product-1", "qty": 1, "price_minor": -100},
		},
		{
			name: "zero qty",
			item: map[string]any{"product_id": "product-9", "qty": 0, "price_minor": 100},
		},
		{
			name: "missing product",
			item: map[string]any{"qty": 1, "price_minor": 100},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := env.do(t, http.MethodPatch, "/orders/"+created.ID, token, map[string]any{
				"products": []map[string]any{tc.item},
			}, nil)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("invalid patch item accepted: status=%d body=%s", recorder.Code, recorder.Body.String())
			}
		})
	}

	// Отклонённые патчи не должны доезжать до хранилища.
	recorder := env.do(t, http.MethodGet, "/orders/myorders/"+created.ID, token, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	stored := decodeOrder(t, recorder)
	for _, item := range stored.Items {
		if item.Qty <= 0 || item.PriceMinor < 0 {
			t.Fatalf("negative qty/price persisted: qty=%d price=%d", item.Qty, item.PriceMinor)
		}
	}
	if stored.TotalMinor != created.TotalMinor {
		t.Fatalf("rejected patch changed the total: got=%d want=%d", stored.TotalMinor, created.TotalMinor)
	}
}

func TestOrderHandler_DeleteOrder(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	created := createTestOrder(t, env, token)

	recorder := env.do(t, http.MethodDelete, "/orders/"+created.ID, token, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	if code := env.do(t, http.MethodGet, "/orders/myorders/"+created.ID, token, nil, nil).Code; code != http.StatusNotFound {
		t.Fatalf("get deleted order: status=%d want=404", code)
	}
}

func TestOrderHandler_ProcessOrder(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	recorder := env.do(t, http.MethodPost, "/orders/process-order", token, processOrderRequest{
		Address: "Lenina 1, Moscow",
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("process order: status=%d body=%s", recorder.Code, recorder.Body.String())
	}

	var response processOrderResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode process response: %v", err)
	}
	if response.Order.ID == "" || len(response.Order.Items) != 2 {
		t.Fatalf("unexpected order in response: %+v", response.Order)
	}
	if response.EmailResponse == "" {
		t.Fatal("expected non-empty email response")
	}
	if env.emails.SendCalls != 1 || env.carts.ClearCalls != 1 {
		t.Fatalf("unexpected downstream calls: email=%d clear=%d", env.emails.SendCalls, env.carts.ClearCalls)
	}

	getRecorder := env.do(t, http.MethodGet, "/orders/myorders/"+response.Order.ID, token, nil, nil)
	if getRecorder.Code != http.StatusOK {
		t.Fatalf("get processed order: status=%d", getRecorder.Code)
	}
}

func TestOrderHandler_ProcessOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")

	recorder := env.do(t, http.MethodPost, "/orders/process-order", token, map[string]any{}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("process without address: status=%d want=400 body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestOrderHandler_ProcessOrderEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")
	env.carts.Cart.Items = nil

	recorder := env.do(t, http.MethodPost, "/orders/process-order", token, processOrderRequest{
		Address: "Lenina 1, Moscow",
	}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty cart: status=%d want=400 body=%s", recorder.Code, recorder.Body.String())
	}
	if len(env.products.Calls) != 0 {
		t.Fatalf("product service called for empty cart: %v", env.products.Calls)
	}
	if env.emails.SendCalls != 0 {
		t.Fatalf("email service called for empty cart: %d", env.emails.SendCalls)
	}
}

func TestOrderHandler_ProcessOrderRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")
	env.products.GetErr = &domain.RemoteError{Service: "product", StatusCode: 503, Message: "unavailable"}

	recorder := env.do(t, http.MethodPost, "/orders/process-order", token, processOrderRequest{
		Address: "Lenina 1, Moscow",
	}, nil)
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("remote failure: status=%d want=502 body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestOrderHandler_ProcessOrderIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")
	headers := map[string]string{"Idempotency-Key": "key-1"}
	body := processOrderRequest{Address: "Lenina 1, Moscow"}

	first := env.do(t, http.MethodPost, "/orders/process-order", token, body, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status=%d body=%s", first.Code, first.Body.String())
	}

	second := env.do(t, http.MethodPost, "/orders/process-order", token, body, headers)
	if second.Code != http.StatusOK {
		t.Fatalf("replay request: status=%d body=%s", second.Code, second.Body.String())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs:\nfirst=%s\nsecond=%s", first.Body.String(), second.Body.String())
	}
	if env.carts.GetCalls != 1 {
		t.Fatalf("workflow executed twice despite idempotency key: cart gets=%d", env.carts.GetCalls)
	}
}

func TestOrderHandler_ProcessOrderIdempotencyHashMismatch(t *testing.T) {
	env := newTestEnv(t)
	token := signTestToken(t, "user-1")
	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := env.do(t, http.MethodPost, "/orders/process-order", token, processOrderRequest{Address: "Lenina 1"}, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status=%d body=%s", first.Code, first.Body.String())
	}

	second := env.do(t, http.MethodPost, "/orders/process-order", token, processOrderRequest{Address: "Tverskaya 5"}, headers)
	if second.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatched body: status=%d want=422 body=%s", second.Code, second.Body.String())
	}
}
