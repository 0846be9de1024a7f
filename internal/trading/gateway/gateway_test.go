package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/engine"
	"github.com/Aidin1998/pincex_futures/internal/trading/lock"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/internal/trading/repository"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const instrumentID = "CL-20251219"

func newGateway(t *testing.T) (*Gateway, model.Store) {
	store := repository.NewMemoryStore()
	clock := model.NewClock()
	reg := registry.NewRegistry(store, clock, zap.NewNop())
	_, err := reg.CreateCommodityFuture(context.Background(), registry.CommodityFutureRequest{
		Symbol: "CL", Expiry: time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC),
		TickSize: d("0.05"), MinQuantity: d("5"), OpenInterest: d("0"),
	})
	require.NoError(t, err)
	eng := engine.NewEngine(store, lock.NewLocalLocker(time.Second), zap.NewNop(), engine.WithClock(clock))
	return NewGateway(eng, reg, store, zap.NewNop()), store
}

func order(side model.Side, price, qty string) SubmitOrderRequest {
	return SubmitOrderRequest{InstrumentID: instrumentID, OwnerID: "alice", Side: side, Price: d(price), Quantity: d(qty)}
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price, tick, want string
		adjusted          bool
	}{
		{"10.05", "0.05", "10.05", false},
		{"10.07", "0.05", "10.05", true},
		{"10.075", "0.05", "10.1", true},
		{"10.025", "0.05", "10.05", true},
		{"0.02", "0.05", "0", true},
		{"1.23456", "0.0001", "1.2346", true},
	}
	for _, tt := range tests {
		got, adjusted := RoundToTick(d(tt.price), d(tt.tick))
		assert.True(t, got.Equal(d(tt.want)), "%s at tick %s: got %s", tt.price, tt.tick, got)
		assert.Equal(t, tt.adjusted, adjusted, "%s at tick %s", tt.price, tt.tick)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	g, store := newGateway(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitOrderRequest
		kind *errors.Error
	}{
		{"zero price", order(model.SideBuy, "0", "5"), errors.InvalidArgument},
		{"negative quantity", order(model.SideBuy, "10", "-5"), errors.InvalidArgument},
		{"below minimum", order(model.SideBuy, "10", "4"), errors.InvalidArgument},
		{"not a lot multiple", order(model.SideBuy, "10", "7"), errors.InvalidArgument},
		{"bad side", order("HOLD", "10", "5"), errors.InvalidArgument},
		{"missing owner", SubmitOrderRequest{InstrumentID: instrumentID, Side: model.SideBuy, Price: d("10"), Quantity: d("5")}, errors.InvalidArgument},
		{"price rounds to zero", order(model.SideBuy, "0.02", "5"), errors.InvalidArgument},
		{"unknown instrument", SubmitOrderRequest{InstrumentID: "NG-20251219", OwnerID: "alice", Side: model.SideBuy, Price: d("10"), Quantity: d("5")}, errors.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.SubmitOrder(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}

	orders, err := store.ListOrders(ctx, model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected orders must not be stored")
}

func TestSubmitOrderAdjustsPrice(t *testing.T) {
	g, _ := newGateway(t)
	req := order("buy", "10.07", "10")
	req.InstrumentID = " cl-20251219 "

	res, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.PriceAdjusted)
	assert.True(t, res.OriginalPrice.Equal(d("10.07")))
	assert.True(t, res.Order.Price.Equal(d("10.05")))
	assert.Equal(t, model.SideBuy, res.Order.Side)
	assert.Equal(t, instrumentID, res.Order.InstrumentID)
}

func TestSubmitAndCancelFlow(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	sell, err := g.SubmitOrder(ctx, order(model.SideSell, "10", "10"))
	require.NoError(t, err)
	assert.False(t, sell.PriceAdjusted)

	buy := order(model.SideBuy, "10.10", "5")
	buy.OwnerID = "bob"
	res, err := g.SubmitOrder(ctx, buy)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Price.Equal(d("10")))
	assert.Equal(t, model.StatusCompleted, res.Order.Status)

	_, err = g.CancelOrder(ctx, CancelOrderRequest{OrderID: sell.Order.ID})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	cancelled, err := g.CancelOrder(ctx, CancelOrderRequest{OrderID: sell.Order.ID, OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.FilledQuantity.Equal(d("5")))

	got, err := g.GetOrder(ctx, sell.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = g.GetOrder(ctx, uuid.New())
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestListOrdersAndTrades(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	_, err := g.SubmitOrder(ctx, order(model.SideSell, "10", "5"))
	require.NoError(t, err)
	buy := order(model.SideBuy, "11", "10")
	buy.OwnerID = "bob"
	_, err = g.SubmitOrder(ctx, buy)
	require.NoError(t, err)

	all, err := g.ListOrders(ctx, model.OrderFilter{InstrumentID: instrumentID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[0].OwnerID, "newest first")

	partial, err := g.ListOrders(ctx, model.OrderFilter{Status: model.StatusPartiallyFilled})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, "bob", partial[0].OwnerID)

	paged, err := g.ListOrders(ctx, model.OrderFilter{Page: model.Page{Page: 2, Limit: 1}})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "alice", paged[0].OwnerID)

	_, err = g.ListOrders(ctx, model.OrderFilter{Status: "OPEN"})
	assert.True(t, errors.Is(err, errors.InvalidArgument))
	_, err = g.ListOrders(ctx, model.OrderFilter{Page: model.Page{Limit: -1}})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	trades, err := g.ListTrades(ctx, model.TradeFilter{InstrumentID: instrumentID})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(d("5")))
}

func TestDepth(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	for _, req := range []SubmitOrderRequest{
		order(model.SideSell, "10.10", "5"),
		order(model.SideSell, "10.10", "10"),
		order(model.SideSell, "10.20", "5"),
		order(model.SideBuy, "9.90", "5"),
		order(model.SideBuy, "9.95", "5"),
	} {
		_, err := g.SubmitOrder(ctx, req)
		require.NoError(t, err)
	}

	depth, err := g.Depth(ctx, instrumentID, 0)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 2)
	assert.True(t, depth.Asks[0].Price.Equal(d("10.10")))
	assert.True(t, depth.Asks[0].Quantity.Equal(d("15")))
	assert.Equal(t, 2, depth.Asks[0].Orders)
	require.Len(t, depth.Bids, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d("9.95")))

	top, err := g.Depth(ctx, instrumentID, 1)
	require.NoError(t, err)
	assert.Len(t, top.Asks, 1)
	assert.Len(t, top.Bids, 1)

	_, err = g.Depth(ctx, "NG-20251219", 5)
	assert.True(t, errors.Is(err, errors.NotFound))
}
