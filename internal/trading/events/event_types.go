package events

import (
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
)

// Standard event topics
const (
	TopicTrade      = "trade"
	TopicOrder      = "order"
	TopicInstrument = "instrument"
)

// Event types
const (
	TypeTradeExecuted     = "TRADE_EXECUTED"
	TypeOrderUpdated      = "ORDER_UPDATED"
	TypeOrderCancelled    = "ORDER_CANCELLED"
	TypeInstrumentUpdated = "INSTRUMENT_UPDATED"
)

// TradeEvent is published for every trade execution
type TradeEvent struct {
	TradeID      string    `json:"trade_id"`
	InstrumentID string    `json:"instrument_id"`
	Price        string    `json:"price"`
	Quantity     string    `json:"quantity"`
	BuyOrderID   string    `json:"buy_order_id"`
	SellOrderID  string    `json:"sell_order_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// OrderEvent is published whenever an order's fill state or status changes
type OrderEvent struct {
	OrderID        string    `json:"order_id"`
	InstrumentID   string    `json:"instrument_id"`
	OwnerID        string    `json:"owner_id"`
	Side           string    `json:"side"`
	Price          string    `json:"price"`
	Quantity       string    `json:"quantity"`
	FilledQuantity string    `json:"filled_quantity"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// InstrumentEvent carries the market statistics after a match
type InstrumentEvent struct {
	InstrumentID string    `json:"instrument_id"`
	LastPrice    string    `json:"last_price"`
	Volume       string    `json:"volume"`
	OpenInterest string    `json:"open_interest"`
	Timestamp    time.Time `json:"timestamp"`
}

// TradeExecuted builds the event for a committed trade.
func TradeExecuted(t *model.Trade) Event {
	return Event{
		Topic:        TopicTrade,
		Type:         TypeTradeExecuted,
		InstrumentID: t.InstrumentID,
		Timestamp:    t.CreatedAt,
		Payload: TradeEvent{
			TradeID:      t.ID.String(),
			InstrumentID: t.InstrumentID,
			Price:        t.Price.String(),
			Quantity:     t.Quantity.String(),
			BuyOrderID:   t.BuyOrderID.String(),
			SellOrderID:  t.SellOrderID.String(),
			Timestamp:    t.CreatedAt,
		},
	}
}

// OrderChanged builds the event for an order after commit.
func OrderChanged(o *model.Order) Event {
	typ := TypeOrderUpdated
	if o.Status == model.StatusCancelled {
		typ = TypeOrderCancelled
	}
	return Event{
		Topic:        TopicOrder,
		Type:         typ,
		InstrumentID: o.InstrumentID,
		Timestamp:    o.UpdatedAt,
		Payload: OrderEvent{
			OrderID:        o.ID.String(),
			InstrumentID:   o.InstrumentID,
			OwnerID:        o.OwnerID,
			Side:           string(o.Side),
			Price:          o.Price.String(),
			Quantity:       o.Quantity.String(),
			FilledQuantity: o.FilledQuantity.String(),
			Status:         string(o.Status),
			Timestamp:      o.UpdatedAt,
		},
	}
}

// InstrumentUpdated builds the event for new market statistics.
func InstrumentUpdated(i *model.Instrument) Event {
	return Event{
		Topic:        TopicInstrument,
		Type:         TypeInstrumentUpdated,
		InstrumentID: i.ID,
		Timestamp:    i.UpdatedAt,
		Payload: InstrumentEvent{
			InstrumentID: i.ID,
			LastPrice:    i.LastPrice.String(),
			Volume:       i.Volume.String(),
			OpenInterest: i.OpenInterest.String(),
			Timestamp:    i.UpdatedAt,
		},
	}
}
