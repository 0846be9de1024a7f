package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_futures/api"
	"github.com/Aidin1998/pincex_futures/internal/config"
	"github.com/Aidin1998/pincex_futures/internal/marketdata"
	"github.com/Aidin1998/pincex_futures/internal/trading/engine"
	"github.com/Aidin1998/pincex_futures/internal/trading/events"
	"github.com/Aidin1998/pincex_futures/internal/trading/gateway"
	"github.com/Aidin1998/pincex_futures/internal/trading/lock"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/internal/trading/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type problem struct {
	Type      string `json:"type"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
}

// setupRouter wires the full stack over the in-memory store
func setupRouter(t *testing.T, health func(context.Context) error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	clock := model.NewClock()
	bus := events.NewInMemoryEventBus(logger)
	reg := registry.NewRegistry(store, clock, logger)
	eng := engine.NewEngine(store, lock.NewLocalLocker(time.Second), logger,
		engine.WithClock(clock), engine.WithPublisher(bus))
	srv := api.NewServer(config.ServerConfig{Port: 0}, api.Dependencies{
		Gateway:  gateway.NewGateway(eng, reg, store, logger),
		Registry: reg,
		Feed:     marketdata.NewHub(bus, nil, logger),
		Health:   health,
	}, logger)
	return srv.Router()
}

func do(t *testing.T, r http.Handler, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(api.OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func createCrudeFuture(t *testing.T, r http.Handler) string {
	w := do(t, r, http.MethodPost, "/api/v1/instruments", "", map[string]string{
		"kind": "COMMODITY_FUTURE", "symbol": "CL", "expiry": "2025-12-19",
		"tick_size": "0.01", "min_quantity": "1", "open_interest": "0",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inst model.Instrument
	decodeData(t, w, &inst)
	return inst.ID
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t, nil)
	w := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])

	down := setupRouter(t, func(context.Context) error { return fmt.Errorf("db down") })
	w = do(t, down, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupRouter(t, nil)
	w := do(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "futures_orders_cancelled_total")
}

func TestInstrumentEndpoints(t *testing.T) {
	r := setupRouter(t, nil)
	id := createCrudeFuture(t, r)
	assert.Equal(t, "CL-20251219", id)

	w := do(t, r, http.MethodPost, "/api/v1/instruments", "", map[string]string{
		"kind": "FX_FUTURE", "pair": "EUR/USD", "expiry": "2025-12-19T00:00:00Z",
		"tick_size": "0.0001", "min_quantity": "1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/instruments", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Instrument
	decodeData(t, w, &list)
	assert.Len(t, list, 2)

	w = do(t, r, http.MethodGet, "/api/v1/instruments/eurusd-20251219", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/instruments", "", map[string]string{"kind": "OPTION", "expiry": "2025-12-19"})
	assert.Equal(t, http.StatusBadRequest, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodPost, "/api/v1/instruments", "", map[string]string{
		"kind": "COMMODITY_FUTURE", "symbol": "CL", "expiry": "2025-12-19", "tick_size": "0.01", "min_quantity": "1",
	})
	assert.Equal(t, http.StatusConflict, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodGet, "/api/v1/instruments/NG-20251219", "", nil)
	assert.Equal(t, http.StatusNotFound, decodeProblem(t, w).Status)
}

func TestOrderLifecycle(t *testing.T) {
	r := setupRouter(t, nil)
	id := createCrudeFuture(t, r)

	w := do(t, r, http.MethodPost, "/api/v1/orders", "", map[string]string{
		"instrument_id": id, "side": "SELL", "price": "70.5", "quantity": "5",
	})
	p := decodeProblem(t, w)
	assert.Equal(t, http.StatusBadRequest, p.Status, "owner header is required")

	w = do(t, r, http.MethodPost, "/api/v1/orders", "alice", map[string]string{
		"instrument_id": id, "side": "SELL", "price": "70.504", "quantity": "5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sell gateway.SubmitOrderResult
	decodeData(t, w, &sell)
	assert.True(t, sell.PriceAdjusted)
	assert.Equal(t, "70.5", sell.Order.Price.String())
	assert.Equal(t, model.StatusPending, sell.Order.Status)

	w = do(t, r, http.MethodPost, "/api/v1/orders", "bob", map[string]string{
		"instrument_id": id, "side": "BUY", "price": "71", "quantity": "3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var buy gateway.SubmitOrderResult
	decodeData(t, w, &buy)
	require.Len(t, buy.Trades, 1)
	assert.Equal(t, "70.5", buy.Trades[0].Price.String())
	assert.Equal(t, model.StatusCompleted, buy.Order.Status)

	path := "/api/v1/orders/" + sell.Order.ID.String()
	w = do(t, r, http.MethodDelete, path, "bob", nil)
	assert.Equal(t, http.StatusConflict, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodDelete, path, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cancelled model.Order
	decodeData(t, w, &cancelled)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "3", cancelled.FilledQuantity.String())

	w = do(t, r, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusConflict, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodGet, "/api/v1/orders/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, decodeProblem(t, w).Status)
	w = do(t, r, http.MethodGet, "/api/v1/orders/00000000-0000-0000-0000-000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodGet, "/api/v1/orders?owner_id=alice&status=cancelled", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []model.Order
	decodeData(t, w, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, sell.Order.ID, orders[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/orders?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, decodeProblem(t, w).Status)

	w = do(t, r, http.MethodGet, "/api/v1/trades?instrument_id="+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trades []model.Trade
	decodeData(t, w, &trades)
	assert.Len(t, trades, 1)

	w = do(t, r, http.MethodGet, "/api/v1/instruments/"+id+"/ticker", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ticker marketdata.Ticker
	decodeData(t, w, &ticker)
	assert.Equal(t, "70.5", ticker.LastPrice)
	assert.Equal(t, "3", ticker.Volume)
}

func TestDepthEndpoint(t *testing.T) {
	r := setupRouter(t, nil)
	id := createCrudeFuture(t, r)

	for _, o := range []map[string]string{
		{"instrument_id": id, "side": "SELL", "price": "71", "quantity": "2"},
		{"instrument_id": id, "side": "SELL", "price": "71", "quantity": "3"},
		{"instrument_id": id, "side": "BUY", "price": "70", "quantity": "4"},
	} {
		w := do(t, r, http.MethodPost, "/api/v1/orders", "alice", o)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodGet, "/api/v1/instruments/"+id+"/depth?levels=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var depth model.Depth
	decodeData(t, w, &depth)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, "5", depth.Asks[0].Quantity.String())
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, "70", depth.Bids[0].Price.String())
}
