package httpx_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderflow/internal/cache"
	"github.com/vladislavdragonenkov/orderflow/internal/health"
	"github.com/vladislavdragonenkov/orderflow/internal/httpx"
	"github.com/vladislavdragonenkov/orderflow/internal/service/cart"
	"github.com/vladislavdragonenkov/orderflow/internal/service/chat"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

type testServer struct {
	server *httptest.Server
	orders *order.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	events := memory.NewEventStore()
	orderRepo := memory.NewOrderRepository(events)
	invRepo := memory.NewInventoryRepository()

	orders := order.NewServiceWithoutMetrics(orderRepo, events, nil)
	inventorySvc := inventory.NewServiceWithoutMetrics(invRepo, events, nil)
	chatSvc := chat.NewServiceWithoutMetrics(memory.NewChatRepository(), nil)
	cartSvc := cart.NewService(memory.NewCartRepository(), orders, nil)

	healthHandler := health.NewHandler("test")
	healthHandler.Register("memory", func() error { return nil })

	router := httpx.NewRouter(httpx.Handlers{
		Orders:    httpx.NewOrderHandler(orders, cache.NewOrderCache(nil, nil), nil),
		Inventory: httpx.NewInventoryHandler(inventorySvc, nil),
		Chat:      httpx.NewChatHandler(chatSvc, nil),
		Cart:      httpx.NewCartHandler(cartSvc, nil),
		Health:    healthHandler,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{server: server, orders: orders}
}

// do выполняет запрос от имени пользователя компании.
func (s *testServer) do(t *testing.T, method, path string, userID, companyID int64, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if userID > 0 {
		req.Header.Set("X-User-Id", fmt.Sprintf("%d", userID))
	}
	if companyID > 0 {
		req.Header.Set("X-Company-Id", fmt.Sprintf("%d", companyID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createOrderBody() map[string]any {
	return map[string]any{
		"supplier_id":      10,
		"delivery_address": "Minsk, Nezavisimosti ave. 4",
		"items": []map[string]any{
			{"product_id": 100, "qty": 5, "unit_price_minor": 10000, "vat_rate_bp": 2000},
		},
	}
}

func TestOrders_RequireIdentityHeaders(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/orders", 0, 0, createOrderBody())
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrders_CreateAndGet(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/orders", 2, 20, createOrderBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[map[string]any](t, resp)
	require.Equal(t, "PENDING_CONFIRMATION", created["status"])
	require.EqualValues(t, 50000, created["total_amount_minor"])
	require.EqualValues(t, 10000, created["vat_amount_minor"])
	orderID := int64(created["id"].(float64))

	// Поставщик видит заказ.
	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), 1, 10, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Посторонняя компания — нет.
	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), 9, 99, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Несуществующий заказ.
	resp = s.do(t, http.MethodGet, "/api/v1/orders/9000", 1, 10, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestOrders_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	body := createOrderBody()
	body["items"] = []map[string]any{}
	resp := s.do(t, http.MethodPost, "/api/v1/orders", 2, 20, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrders_TransitionsAndConflicts(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/orders", 2, 20, createOrderBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	orderID := int64(created["id"].(float64))

	// Подтвердить может только поставщик заказа.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/confirm", orderID), 9, 99, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/confirm", orderID), 1, 10, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decode[map[string]any](t, resp)
	require.Equal(t, "CONFIRMED", confirmed["status"])

	// Отгрузка из CONFIRMED — недопустимый переход.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/ship", orderID), 1, 10, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// reject без причины — 400.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/reject", orderID), 1, 10, map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestOrders_StatusAndHistory(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/orders", 2, 20, createOrderBody())
	created := decode[map[string]any](t, resp)
	orderID := int64(created["id"].(float64))

	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/confirm", orderID), 1, 10, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/status", orderID), 2, 20, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snapshot := decode[map[string]any](t, resp)
	require.Equal(t, "CONFIRMED", snapshot["status"])

	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/history", orderID), 2, 20, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]map[string]any](t, resp)
	require.Len(t, history, 2)
	require.Equal(t, "OrderCreated", history[0]["event_type"])
	require.Equal(t, "OrderConfirmed", history[1]["event_type"])
}

func TestCart_CheckoutFlow(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/cart/items", 2, 20, map[string]any{
		"product_id": 100, "supplier_id": 10, "qty": 2, "unit_price_minor": 10000, "vat_rate_bp": 2000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, "/api/v1/cart/items", 2, 20, map[string]any{
		"product_id": 200, "supplier_id": 11, "qty": 1, "unit_price_minor": 7000, "vat_rate_bp": 2000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, "/api/v1/cart/checkout", 2, 20, map[string]any{
		"delivery_address": "Minsk, Pobediteley ave. 7",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orders := decode[[]map[string]any](t, resp)
	require.Len(t, orders, 2)

	resp = s.do(t, http.MethodGet, "/api/v1/cart", 2, 20, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cartBody := decode[map[string]any](t, resp)
	require.Empty(t, cartBody["items"])

	// Повторный checkout пустой корзины отклоняется.
	resp = s.do(t, http.MethodPost, "/api/v1/cart/checkout", 2, 20, map[string]any{
		"delivery_address": "Minsk",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestInventory_UpsertAndReports(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/v1/inventory/100", 1, 10, map[string]any{"available": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/api/v1/inventory/100", 1, 10, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := decode[map[string]any](t, resp)
	require.EqualValues(t, 3, record["available"])

	resp = s.do(t, http.MethodPost, "/api/v1/inventory/100/add-stock", 1, 10, map[string]any{"qty": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record = decode[map[string]any](t, resp)
	require.EqualValues(t, 23, record["available"])

	resp = s.do(t, http.MethodGet, "/api/v1/inventory/low-stock", 1, 10, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	low := decode[[]map[string]any](t, resp)
	require.Empty(t, low)

	// Неположительное пополнение — ошибка валидации.
	resp = s.do(t, http.MethodPost, "/api/v1/inventory/100/add-stock", 1, 10, map[string]any{"qty": 0})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/api/v1/inventory/999", 1, 10, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestChat_NotFoundWithoutChannel(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/chat/orders/1", 2, 20, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/livez", "/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(s.server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}
