package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Crosses reports whether an incoming order on side at limit can trade
// against a resting order priced at resting.
func Crosses(side Side, limit, resting decimal.Decimal) bool {
	if side == SideBuy {
		return resting.LessThanOrEqual(limit)
	}
	return resting.GreaterThanOrEqual(limit)
}

// PriorityLess orders resting orders of one side for matching: best price
// first (lowest ask, highest bid), then earliest submission, then id.
func PriorityLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		if a.Side == SideBuy {
			return c > 0
		}
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// SortByPriority sorts orders in matching priority.
func SortByPriority(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool { return PriorityLess(orders[i], orders[j]) })
}

// OrderNewer orders by creation time descending, then id descending.
func OrderNewer(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// TradeNewer orders by creation time descending, then id descending.
func TradeNewer(a, b *Trade) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// PriceLevel is the aggregated resting quantity at one price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is an aggregated view of resting interest on an instrument.
type Depth struct {
	InstrumentID string       `json:"instrument_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// AggregateLevels folds priority-ordered open orders of one side into at
// most levels price levels; levels <= 0 means no limit.
func AggregateLevels(orders []*Order, levels int) []PriceLevel {
	out := make([]PriceLevel, 0)
	for _, o := range orders {
		rem := o.Remaining()
		if !rem.IsPositive() {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(rem)
			out[n-1].Orders++
			continue
		}
		if levels > 0 && len(out) == levels {
			break
		}
		out = append(out, PriceLevel{Price: o.Price, Quantity: rem, Orders: 1})
	}
	return out
}
