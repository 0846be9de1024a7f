package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/messaging"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleTrade() *model.Trade {
	return &model.Trade{
		ID:           uuid.New(),
		InstrumentID: "CL-20251219",
		Price:        decimal.RequireFromString("10.25"),
		Quantity:     decimal.RequireFromString("3"),
		BuyOrderID:   uuid.New(),
		SellOrderID:  uuid.New(),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestInMemoryEventBusDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	trades, cancel := bus.Subscribe(TopicTrade, 4)
	orders, cancelOrders := bus.Subscribe(TopicOrder, 4)
	defer cancelOrders()

	trade := sampleTrade()
	require.NoError(t, bus.Publish(context.Background(), TradeExecuted(trade)))

	select {
	case e := <-trades:
		assert.Equal(t, TypeTradeExecuted, e.Type)
		payload := e.Payload.(TradeEvent)
		assert.Equal(t, "10.25", payload.Price)
		assert.Equal(t, trade.BuyOrderID.String(), payload.BuyOrderID)
	case <-time.After(time.Second):
		t.Fatal("trade event not delivered")
	}
	assert.Len(t, orders, 0)

	cancel()
	_, open := <-trades
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers(TopicTrade))
	cancel()
}

func TestInMemoryEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	_, cancel := bus.Subscribe(TopicTrade, 1)
	defer cancel()

	e := TradeExecuted(sampleTrade())
	require.NoError(t, bus.Publish(context.Background(), e, e, e))
	published, delivered, dropped := bus.Metrics()
	assert.Equal(t, int64(3), published)
	assert.Equal(t, int64(1), delivered)
	assert.Equal(t, int64(2), dropped)
}

func TestOrderChangedType(t *testing.T) {
	o := model.NewOrder("CL-20251219", "alice", model.SideBuy,
		decimal.RequireFromString("10"), decimal.RequireFromString("5"), time.Now())
	assert.Equal(t, TypeOrderUpdated, OrderChanged(o).Type)
	require.NoError(t, o.Cancel(time.Now()))
	e := OrderChanged(o)
	assert.Equal(t, TypeOrderCancelled, e.Type)
	assert.Equal(t, "CANCELLED", e.Payload.(OrderEvent).Status)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(ctx context.Context, events ...Event) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ch, cancel := bus.Subscribe(TopicTrade, 1)
	defer cancel()

	boom := fmt.Errorf("boom")
	err := Fanout{failingPublisher{boom}, bus, NopPublisher{}}.Publish(context.Background(), TradeExecuted(sampleTrade()))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ch, 1, "later publishers still receive the event")
}

type recordingWriter struct{ msgs []kafka.Message }

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}
func (w *recordingWriter) Close() error { return nil }

func TestKafkaEventBus(t *testing.T) {
	w := &recordingWriter{}
	bus := NewKafkaEventBus(messaging.NewKafkaClientWithWriter(w, "futures.events", zap.NewNop()))

	trade := sampleTrade()
	require.NoError(t, bus.Publish(context.Background(), TradeExecuted(trade)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, trade.InstrumentID, string(w.msgs[0].Key))

	var decoded struct {
		Type    string     `json:"type"`
		Payload TradeEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, TypeTradeExecuted, decoded.Type)
	assert.Equal(t, trade.ID.String(), decoded.Payload.TradeID)
	require.NoError(t, bus.Close())
}
