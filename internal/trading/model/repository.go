package model

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pagination defaults
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// OrderFilter selects orders for listing. Empty fields match everything.
type OrderFilter struct {
	InstrumentID string
	OwnerID      string
	Status       Status
	Page
}

// Matches reports whether o passes the filter.
func (f OrderFilter) Matches(o *Order) bool {
	if f.InstrumentID != "" && o.InstrumentID != f.InstrumentID {
		return false
	}
	if f.OwnerID != "" && o.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// TradeFilter selects trades for listing.
type TradeFilter struct {
	InstrumentID string
	Page
}

// Tx is the view of the store inside one atomic unit of work. Nothing written
// through a Tx is visible outside it until WithTx returns nil.
type Tx interface {
	// GetInstrument loads the instrument, locking it for the rest of the unit
	// where the backend supports row locks.
	GetInstrument(ctx context.Context, id string) (*Instrument, error)
	SaveInstrument(ctx context.Context, inst *Instrument) error
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, order *Order) error
	// RestingOrders returns open orders on side of the instrument whose price
	// crosses limit for an incoming order of the opposite side, in matching
	// priority.
	RestingOrders(ctx context.Context, instrumentID string, side Side, limit decimal.Decimal) ([]*Order, error)
	CreateTrade(ctx context.Context, trade *Trade) error
}

// Store persists instruments, orders and trades.
type Store interface {
	// WithTx runs fn in one atomic unit: every write made through the Tx is
	// committed together when fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateInstrument(ctx context.Context, inst *Instrument) error
	GetInstrument(ctx context.Context, id string) (*Instrument, error)
	ListInstruments(ctx context.Context) ([]*Instrument, error)

	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// OpenOrders returns the open orders on one side in matching priority.
	OpenOrders(ctx context.Context, instrumentID string, side Side) ([]*Order, error)
	// ListOrders returns matching orders newest first.
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error)
	// ListTrades returns matching trades newest first.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*Trade, error)

	Close() error
}
