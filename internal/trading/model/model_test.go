package model

import (
	"testing"
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		filled, qty string
		cancelled   bool
		want        Status
	}{
		{"0", "10", false, StatusPending},
		{"4", "10", false, StatusPartiallyFilled},
		{"10", "10", false, StatusCompleted},
		{"0", "10", true, StatusCancelled},
		{"4", "10", true, StatusCancelled},
		{"10", "10", true, StatusCompleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveStatus(d(tt.filled), d(tt.qty), tt.cancelled),
			"filled=%s qty=%s cancelled=%v", tt.filled, tt.qty, tt.cancelled)
	}
}

func TestOrderFillAndCancel(t *testing.T) {
	now := time.Now()
	o := NewOrder("CL-Z25", "alice", SideBuy, d("10"), d("8"), now)
	assert.Equal(t, StatusPending, o.Status)

	require.NoError(t, o.Fill(d("5"), now))
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.Remaining().Equal(d("3")))

	err := o.Fill(d("4"), now)
	assert.True(t, errors.Is(err, errors.InvalidState))
	assert.True(t, o.FilledQuantity.Equal(d("5")))

	require.NoError(t, o.Cancel(now))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.True(t, o.FilledQuantity.Equal(d("5")))

	assert.True(t, errors.Is(o.Cancel(now), errors.InvalidState))
	assert.True(t, errors.Is(o.Fill(d("1"), now), errors.InvalidState))
}

func TestCompletedOrderCannotBeCancelled(t *testing.T) {
	now := time.Now()
	o := NewOrder("CL-Z25", "alice", SideSell, d("10"), d("5"), now)
	require.NoError(t, o.Fill(d("5"), now))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, errors.Is(o.Cancel(now), errors.InvalidState))
}

func TestInstrumentApplyMatch(t *testing.T) {
	inst := &Instrument{ID: "CL-Z25", Volume: d("100")}
	require.NoError(t, inst.ApplyMatch(d("10.5"), d("8"), time.Now()))
	assert.True(t, inst.LastPrice.Equal(d("10.5")))
	assert.True(t, inst.Volume.Equal(d("108")))

	assert.True(t, errors.Is(inst.ApplyMatch(d("0"), d("1"), time.Now()), errors.InvalidArgument))
	assert.True(t, errors.Is(inst.ApplyMatch(d("1"), d("-1"), time.Now()), errors.InvalidArgument))
	assert.True(t, inst.Volume.Equal(d("108")))
}

func TestPriorityLess(t *testing.T) {
	t0 := time.Now()
	mk := func(side Side, price string, at time.Time) *Order {
		return &Order{ID: uuid.New(), Side: side, Price: d(price), CreatedAt: at}
	}

	asks := []*Order{
		mk(SideSell, "10.5", t0),
		mk(SideSell, "10", t0.Add(time.Second)),
		mk(SideSell, "10", t0),
	}
	SortByPriority(asks)
	assert.True(t, asks[0].Price.Equal(d("10")))
	assert.Equal(t, t0, asks[0].CreatedAt)
	assert.True(t, asks[2].Price.Equal(d("10.5")))

	bids := []*Order{mk(SideBuy, "9", t0), mk(SideBuy, "9.5", t0.Add(time.Second))}
	SortByPriority(bids)
	assert.True(t, bids[0].Price.Equal(d("9.5")))
}

func TestCrosses(t *testing.T) {
	assert.True(t, Crosses(SideBuy, d("10"), d("10")))
	assert.True(t, Crosses(SideBuy, d("10"), d("9")))
	assert.False(t, Crosses(SideBuy, d("10"), d("10.01")))
	assert.True(t, Crosses(SideSell, d("10"), d("10.01")))
	assert.False(t, Crosses(SideSell, d("10"), d("9.99")))
}

func TestAggregateLevels(t *testing.T) {
	orders := []*Order{
		{Side: SideSell, Price: d("10"), Quantity: d("5"), FilledQuantity: d("2")},
		{Side: SideSell, Price: d("10"), Quantity: d("4")},
		{Side: SideSell, Price: d("11"), Quantity: d("1")},
		{Side: SideSell, Price: d("12"), Quantity: d("1")},
	}
	levels := AggregateLevels(orders, 2)
	require.Len(t, levels, 2)
	assert.True(t, levels[0].Quantity.Equal(d("7")))
	assert.Equal(t, 2, levels[0].Orders)
	assert.True(t, levels[1].Price.Equal(d("11")))
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 123456789, time.UTC)
	c := NewClockFrom(func() time.Time { return fixed })
	a := c.Now()
	b := c.Now()
	assert.Equal(t, fixed.Truncate(time.Microsecond), a)
	assert.Equal(t, a.Add(time.Microsecond), b)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, MaxPageLimit, Page{Limit: 10000}.Normalize().Limit)
	assert.Equal(t, 10, Page{Page: 2, Limit: 10}.Offset())
}
