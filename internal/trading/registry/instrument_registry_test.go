package registry

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/repository"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRegistry() *Registry {
	return NewRegistry(repository.NewMemoryStore(), model.NewClock(), zap.NewNop())
}

func TestCreateFXFuture(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	expiry := time.Date(2025, 12, 19, 15, 30, 0, 0, time.UTC)

	inst, err := r.CreateFXFuture(ctx, FXFutureRequest{
		Pair: "eur/usd", Expiry: expiry, TickSize: d("0.0001"), MinQuantity: d("1"), OpenInterest: d("0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD-20251219", inst.ID)
	assert.Equal(t, model.KindFXFuture, inst.Kind)
	assert.Equal(t, "EURUSD", inst.Symbol)
	assert.Equal(t, time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), inst.ExpiryDate)

	_, err = r.CreateFXFuture(ctx, FXFutureRequest{
		Pair: "EURUSD", Expiry: expiry, TickSize: d("0.0001"), MinQuantity: d("1"),
	})
	assert.True(t, errors.Is(err, errors.InvalidState), "duplicate contract: %v", err)

	spec, err := r.Spec(ctx, "EURUSD-20251219")
	require.NoError(t, err)
	assert.True(t, spec.TickSize.Equal(d("0.0001")))
}

func TestCreateCommodityFuture(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()

	inst, err := r.CreateCommodityFuture(ctx, CommodityFutureRequest{
		Symbol: "cl", Expiry: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		TickSize: d("0.01"), MinQuantity: d("5"), OpenInterest: d("1200"),
	})
	require.NoError(t, err)
	assert.Equal(t, "CL-20260120", inst.ID)
	assert.Equal(t, model.KindCommodityFuture, inst.Kind)

	got, err := r.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, got.OpenInterest.Equal(d("1200")))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateRejectsBadInput(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()
	expiry := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  FXFutureRequest
	}{
		{"zero tick", FXFutureRequest{Pair: "EURUSD", Expiry: expiry, TickSize: d("0"), MinQuantity: d("1")}},
		{"negative min", FXFutureRequest{Pair: "EURUSD", Expiry: expiry, TickSize: d("0.01"), MinQuantity: d("-1")}},
		{"negative open interest", FXFutureRequest{Pair: "EURUSD", Expiry: expiry, TickSize: d("0.01"), MinQuantity: d("1"), OpenInterest: d("-3")}},
		{"bad pair", FXFutureRequest{Pair: "EUR", Expiry: expiry, TickSize: d("0.01"), MinQuantity: d("1")}},
		{"missing expiry", FXFutureRequest{Pair: "EURUSD", TickSize: d("0.01"), MinQuantity: d("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreateFXFuture(ctx, tt.req)
			assert.True(t, errors.Is(err, errors.InvalidArgument), "got %v", err)
		})
	}

	_, err := r.Spec(ctx, "NOPE-20260101")
	assert.True(t, errors.Is(err, errors.NotFound))
}
