package model

import (
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstrumentKind distinguishes the two futures families the engine serves.
type InstrumentKind string

const (
	KindCommodityFuture InstrumentKind = "COMMODITY_FUTURE"
	KindFXFuture        InstrumentKind = "FX_FUTURE"
)

// Side of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status of an order
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyFilled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether an order in status s may still trade.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPartiallyFilled
}

// DeriveStatus is the only place an order status is computed.
// Cancellation wins over fill state unless the order is already complete.
func DeriveStatus(filled, quantity decimal.Decimal, cancelled bool) Status {
	switch {
	case filled.GreaterThanOrEqual(quantity):
		return StatusCompleted
	case cancelled:
		return StatusCancelled
	case filled.IsPositive():
		return StatusPartiallyFilled
	default:
		return StatusPending
	}
}

// Instrument represents a tradable futures contract.
type Instrument struct {
	ID           string          `json:"id"`
	Kind         InstrumentKind  `json:"kind"`
	Symbol       string          `json:"symbol"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	TickSize     decimal.Decimal `json:"tick_size"`
	MinQuantity  decimal.Decimal `json:"min_quantity"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Volume       decimal.Decimal `json:"volume"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ApplyMatch records the outcome of one matching invocation: the price of
// its last trade and the summed quantity of all its trades.
func (i *Instrument) ApplyMatch(lastPrice, quantity decimal.Decimal, at time.Time) error {
	if !lastPrice.IsPositive() {
		return errors.InvalidArgument.Explain("last price must be positive, got %s", lastPrice)
	}
	if quantity.IsNegative() {
		return errors.InvalidArgument.Explain("traded quantity must not be negative, got %s", quantity)
	}
	i.LastPrice = lastPrice
	i.Volume = i.Volume.Add(quantity)
	i.UpdatedAt = at
	return nil
}

// Clone returns a copy safe to mutate independently.
func (i *Instrument) Clone() *Instrument {
	c := *i
	return &c
}

// Order represents a limit order on one instrument.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	InstrumentID   string          `json:"instrument_id"`
	OwnerID        string          `json:"owner_id"`
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Status         Status          `json:"status"`
	Cancelled      bool            `json:"cancelled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewOrder builds a PENDING order with a fresh id.
func NewOrder(instrumentID, ownerID string, side Side, price, quantity decimal.Decimal, at time.Time) *Order {
	return &Order{
		ID:             uuid.New(),
		InstrumentID:   instrumentID,
		OwnerID:        ownerID,
		Side:           side,
		Price:          price,
		Quantity:       quantity,
		FilledQuantity: decimal.Zero,
		Status:         StatusPending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsOpen reports whether the order can still match.
func (o *Order) IsOpen() bool {
	return o.Status.Open()
}

// Fill adds qty to the filled quantity and recomputes the status.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) error {
	if !qty.IsPositive() {
		return errors.InvalidArgument.Explain("fill quantity must be positive, got %s", qty)
	}
	if !o.IsOpen() {
		return errors.InvalidState.Explain("order %s is %s", o.ID, o.Status)
	}
	if qty.GreaterThan(o.Remaining()) {
		return errors.InvalidState.Explain("fill of %s exceeds remaining %s on order %s", qty, o.Remaining(), o.ID)
	}
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.refreshStatus()
	o.UpdatedAt = at
	return nil
}

// Cancel marks an open order cancelled. Filled quantity is left untouched.
func (o *Order) Cancel(at time.Time) error {
	if !o.IsOpen() {
		return errors.InvalidState.Explain("order %s is already %s", o.ID, o.Status)
	}
	o.Cancelled = true
	o.refreshStatus()
	o.UpdatedAt = at
	return nil
}

func (o *Order) refreshStatus() {
	o.Status = DeriveStatus(o.FilledQuantity, o.Quantity, o.Cancelled)
}

// Clone returns a copy safe to mutate independently.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Trade represents one execution between a BUY and a SELL order.
type Trade struct {
	ID           uuid.UUID       `json:"id"`
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	BuyOrderID   uuid.UUID       `json:"buy_order_id"`
	SellOrderID  uuid.UUID       `json:"sell_order_id"`
	CreatedAt    time.Time       `json:"created_at"`
}
