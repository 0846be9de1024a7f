package repository

import (
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// instrumentRow is the gorm mapping of model.Instrument
type instrumentRow struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)"`
	Kind         string          `gorm:"type:varchar(32);not null"`
	Symbol       string          `gorm:"type:varchar(32);not null"`
	ExpiryDate   time.Time       `gorm:"type:date"`
	TickSize     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	MinQuantity  decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	LastPrice    decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	Volume       decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	OpenInterest decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (instrumentRow) TableName() string { return "instruments" }

// orderRow is the gorm mapping of model.Order
type orderRow struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InstrumentID   string          `gorm:"type:varchar(64);not null;index:idx_orders_book,priority:1;index:idx_orders_instrument_created,priority:1"`
	OwnerID        string          `gorm:"type:varchar(64);not null;index"`
	Side           string          `gorm:"type:varchar(4);not null;index:idx_orders_book,priority:2"`
	Price          decimal.Decimal `gorm:"type:decimal(36,18);not null;index:idx_orders_book,priority:4"`
	Quantity       decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	FilledQuantity decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	Status         string          `gorm:"type:varchar(20);not null;index:idx_orders_book,priority:3"`
	Cancelled      bool            `gorm:"not null;default:false"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_orders_instrument_created,priority:2"`
	UpdatedAt      time.Time
}

func (orderRow) TableName() string { return "orders" }

// tradeRow is the gorm mapping of model.Trade
type tradeRow struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InstrumentID string          `gorm:"type:varchar(64);not null;index:idx_trades_instrument_created,priority:1"`
	Price        decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	BuyOrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	SellOrderID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_trades_instrument_created,priority:2"`
}

func (tradeRow) TableName() string { return "trades" }

func toInstrumentRow(i *model.Instrument) *instrumentRow {
	return &instrumentRow{
		ID:           i.ID,
		Kind:         string(i.Kind),
		Symbol:       i.Symbol,
		ExpiryDate:   i.ExpiryDate,
		TickSize:     i.TickSize,
		MinQuantity:  i.MinQuantity,
		LastPrice:    i.LastPrice,
		Volume:       i.Volume,
		OpenInterest: i.OpenInterest,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func (r *instrumentRow) toModel() *model.Instrument {
	return &model.Instrument{
		ID:           r.ID,
		Kind:         model.InstrumentKind(r.Kind),
		Symbol:       r.Symbol,
		ExpiryDate:   r.ExpiryDate.UTC(),
		TickSize:     r.TickSize,
		MinQuantity:  r.MinQuantity,
		LastPrice:    r.LastPrice,
		Volume:       r.Volume,
		OpenInterest: r.OpenInterest,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toOrderRow(o *model.Order) *orderRow {
	return &orderRow{
		ID:             o.ID,
		InstrumentID:   o.InstrumentID,
		OwnerID:        o.OwnerID,
		Side:           string(o.Side),
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		Cancelled:      o.Cancelled,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (r *orderRow) toModel() *model.Order {
	return &model.Order{
		ID:             r.ID,
		InstrumentID:   r.InstrumentID,
		OwnerID:        r.OwnerID,
		Side:           model.Side(r.Side),
		Price:          r.Price,
		Quantity:       r.Quantity,
		FilledQuantity: r.FilledQuantity,
		Status:         model.Status(r.Status),
		Cancelled:      r.Cancelled,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func toTradeRow(t *model.Trade) *tradeRow {
	return &tradeRow{
		ID:           t.ID,
		InstrumentID: t.InstrumentID,
		Price:        t.Price,
		Quantity:     t.Quantity,
		BuyOrderID:   t.BuyOrderID,
		SellOrderID:  t.SellOrderID,
		CreatedAt:    t.CreatedAt,
	}
}

func (r *tradeRow) toModel() *model.Trade {
	return &model.Trade{
		ID:           r.ID,
		InstrumentID: r.InstrumentID,
		Price:        r.Price,
		Quantity:     r.Quantity,
		BuyOrderID:   r.BuyOrderID,
		SellOrderID:  r.SellOrderID,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func orderRowsToModel(rows []orderRow) []*model.Order {
	out := make([]*model.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}
