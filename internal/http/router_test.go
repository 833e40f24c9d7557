package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/realtime"
	"github.com/fjod/picknpay/internal/repository"
	"github.com/fjod/picknpay/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "admin@gmail.com"

type testAPI struct {
	handler http.Handler
	carts   *fakeCarts
	menu    *fakeMenu
	devices *fakeDevices
	hub     *realtime.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := discardLogger()
	hub := realtime.NewHub(logger)
	t.Cleanup(hub.Close)

	carts := newFakeCarts()
	menu := &fakeMenu{items: map[string]*domain.MenuItem{"burger": testMenu["burger"]}}
	devices := &fakeDevices{tokens: make(map[string]string)}
	orders := service.NewOrderService(repository.NewMemoryOrderRepository(), carts, menu,
		realtime.NewRouter(hub, logger), nopNotifier{},
		service.OrderServiceConfig{AdminIdentity: testAdmin, PickupTokenAttempts: 10}, logger)

	cfg := RouterConfig{
		AdminIdentity:      testAdmin,
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		ServiceName:        "picknpay-test",
	}
	ws := realtime.NewHandler(hub, CallerResolver(testAdmin), logger)
	handler := NewRouter(cfg, Services{Carts: carts, Orders: orders, Menu: menu, Devices: devices}, ws, logger)

	return &testAPI{handler: handler, carts: carts, menu: menu, devices: devices, hub: hub}
}

func (a *testAPI) do(t *testing.T, method, path, identity string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func (a *testAPI) placeOrder(t *testing.T, owner string) *domain.Order {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/orders", owner, map[string]any{
		"ownerIdentity":    owner,
		"ownerDisplayName": "Alice",
		"lineItems": []map[string]any{
			{"itemId": "burger", "name": "Burger", "unitPrice": 50, "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*domain.Order](t, rec)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_RequiresIdentity(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/cart/alice", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestCart_Flow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "burger"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "burger"})
	api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "cola"})

	rec = api.do(t, http.MethodGet, "/api/cart/alice", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[domain.Cart](t, rec)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	rec = api.do(t, http.MethodPut, "/api/cart/update", "alice", map[string]any{"itemId": "burger", "quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[domain.Cart](t, rec)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	rec = api.do(t, http.MethodPut, "/api/cart/update", "alice", map[string]any{"itemId": "burger", "quantity": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/cart/alice", "alice", map[string]string{"itemId": "cola"})
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[domain.Cart](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "burger", cart.Items[0].ItemID)

	rec = api.do(t, http.MethodDelete, "/api/cart/alice/items/burger", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[domain.Cart](t, rec).Items)

	api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "cola"})
	rec = api.do(t, http.MethodDelete, "/api/cart/alice", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[domain.Cart](t, rec).Items)
}

func TestCart_Authorization(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/cart/bob", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"ownerIdentity": "bob", "itemId": "burger"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/cart/bob", testAdmin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCart_BadRequests(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/cart", "alice", `{"itemId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "pizza"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/cart/update", "alice", map[string]string{"itemId": "burger"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	order := api.placeOrder(t, "alice")

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(order.TotalAmount))
	assert.Nil(t, order.PickupToken)
	path := "/api/orders/" + order.ID.String()

	rec := api.do(t, http.MethodPut, path+"/accept", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, path+"/accept", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[*domain.Order](t, rec)
	require.NotNil(t, accepted.PickupToken)

	rec = api.do(t, http.MethodPut, path+"/accept", testAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_state", resp.Code)
	assert.Equal(t, "current status Accepted, expected Pending", resp.Details)

	rec = api.do(t, http.MethodPut, path+"/ready", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPut, path+"/received", "alice", map[string]string{"isReceived": "no"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusReadyToServe, decode[*domain.Order](t, rec).Status)

	rec = api.do(t, http.MethodPut, path+"/collected", "bob", map[string]bool{"collected": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, path+"/collected", "alice", map[string]bool{"collected": true})
	require.Equal(t, http.StatusOK, rec.Code)
	collected := decode[*domain.Order](t, rec)
	assert.Equal(t, domain.OrderStatusCollected, collected.Status)
	assert.Equal(t, *accepted.PickupToken, *collected.PickupToken)

	rec = api.do(t, http.MethodPut, path+"/item/feedback", "alice", map[string]any{"itemId": "burger", "rating": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, path+"/item/feedback", "alice", map[string]any{"itemId": "fries", "rating": 4})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPut, path+"/item/feedback", "alice", map[string]any{"itemId": "burger", "rating": 4, "comment": "nice"})
	require.Equal(t, http.StatusOK, rec.Code)
	rated := decode[*domain.Order](t, rec)
	assert.Equal(t, 4, *rated.Items[0].Rating)

	rec = api.do(t, http.MethodGet, "/api/orders/user/alice", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]*domain.Order](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, domain.OrderStatusCollected, list[0].Status)

	rec = api.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodDelete, path, testAdmin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, path, testAdmin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_PlaceUsesMenuPrices(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/orders", "alice", map[string]any{
		"lineItems": []map[string]any{
			{"itemId": "burger", "name": "Cheap", "unitPrice": 0, "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[*domain.Order](t, rec)
	assert.True(t, decimal.NewFromInt(100).Equal(order.TotalAmount))
	assert.Equal(t, "Burger", order.Items[0].Name)

	rec = api.do(t, http.MethodPost, "/api/orders", "alice", map[string]any{
		"lineItems": []map[string]any{{"itemId": "pizza", "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_FeedbackBeforeCollected(t *testing.T) {
	api := newTestAPI(t)
	order := api.placeOrder(t, "alice")

	rec := api.do(t, http.MethodPut, "/api/orders/"+order.ID.String()+"/item/feedback", "alice",
		map[string]any{"itemId": "burger", "rating": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/orders/"+order.ID.String()+"/item/feedback", "alice",
		map[string]any{"itemId": "burger", "rating": 9})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrders_RejectAlias(t *testing.T) {
	api := newTestAPI(t)
	order := api.placeOrder(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/reject/"+order.ID.String(), testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusRejected, decode[*domain.Order](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/orders/"+order.ID.String(), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrders_PlaceFromCart(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/cart", "alice", map[string]string{"itemId": "burger"})

	rec := api.do(t, http.MethodPost, "/api/orders", "alice", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[*domain.Order](t, rec)
	assert.True(t, decimal.NewFromInt(50).Equal(order.TotalAmount))

	rec = api.do(t, http.MethodPost, "/api/orders", "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_ListAndGetAuthorization(t *testing.T) {
	api := newTestAPI(t)
	order := api.placeOrder(t, "alice")
	api.placeOrder(t, "bob")

	rec := api.do(t, http.MethodGet, "/api/orders", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*domain.Order](t, rec), 2)

	rec = api.do(t, http.MethodGet, "/api/orders/user/alice", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders/"+order.ID.String(), "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders/user/carol", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestOrders_BadIDs(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPut, "/api/orders/not-a-uuid/accept", testAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/orders/"+uuid.NewString()+"/accept", testAdmin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/orders/"+uuid.NewString()+"/received", "alice", map[string]string{"isReceived": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_MalformedReceivedBody(t *testing.T) {
	api := newTestAPI(t)
	order := api.placeOrder(t, "alice")

	for _, body := range []string{`{"isReceived":`, `{"isReceived":"maybe"}`, `[1,2]`} {
		rec := api.do(t, http.MethodPut, "/api/orders/"+order.ID.String()+"/received", "alice", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "invalid_request", resp.Code)
		assert.Equal(t, "invalid JSON body", resp.Error)
	}
}

func TestMenu(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/items", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[MenuItemsResponse](t, rec).Items, 1)

	item := map[string]any{"name": "Fries", "price": "2.50", "category": "Sides"}
	rec = api.do(t, http.MethodPost, "/api/items", "alice", item)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/items", testAdmin, item)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.MenuItem](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, decimal.RequireFromString("2.50").Equal(created.Price))

	rec = api.do(t, http.MethodPost, "/api/items", testAdmin, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/items/"+created.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/items/"+created.ID, testAdmin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/items/"+created.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceTokens(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/auth/save-fcm-token", "alice", map[string]string{"email": "alice", "token": "fcm-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", api.devices.owner("fcm-1"))

	rec = api.do(t, http.MethodPost, "/api/auth/save-fcm-token", "alice", map[string]string{"email": "bob", "token": "fcm-2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/auth/save-fcm-token", "alice", map[string]string{"token": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/auth/fcm-token", "alice", map[string]string{"token": "fcm-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, api.devices.owner("fcm-1"))
}

func TestRequestBodyLimit(t *testing.T) {
	api := newTestAPI(t)
	big := fmt.Sprintf(`{"itemId":"%s"}`, strings.Repeat("x", 2<<20))

	rec := api.do(t, http.MethodPost, "/api/cart", "alice", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{&domain.TransitionError{Action: "accept", Current: domain.OrderStatusRejected, Expected: domain.OrderStatusPending}, http.StatusConflict, "invalid_state"},
		{domain.ErrConflict, http.StatusConflict, "conflict"},
		{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), discardLogger(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestWebSocket_ReceivesOrderEvents(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.handler)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	customer, _, err := websocket.DefaultDialer.Dial(wsURL+"?identity=alice", nil)
	require.NoError(t, err)
	t.Cleanup(func() { customer.Close() })
	admin, _, err := websocket.DefaultDialer.Dial(wsURL+"?identity="+testAdmin, nil)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	require.Eventually(t, func() bool {
		return api.hub.Online("alice") && api.hub.Members(realtime.AdminRoom) == 1
	}, 2*time.Second, 10*time.Millisecond)

	order := api.placeOrder(t, "alice")
	rec := api.do(t, http.MethodPut, "/api/orders/"+order.ID.String()+"/accept", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := *decode[*domain.Order](t, rec).PickupToken

	type wire struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	read := func(conn *websocket.Conn) wire {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg wire
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, realtime.EventNewOrder, read(admin).Event)
	assert.Equal(t, realtime.EventOrderUpdated, read(admin).Event)

	msg := read(customer)
	require.Equal(t, realtime.EventOrderAccepted, msg.Event)
	var payload realtime.AcceptedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, token, payload.PickupToken)
	assert.Equal(t, realtime.EventOrderUpdated, read(customer).Event)
}
