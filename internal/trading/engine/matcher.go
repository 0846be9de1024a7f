package engine

import (
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchResult is the outcome of matching one incoming order
type MatchResult struct {
	Trades []*model.Trade
	// Makers holds the resting orders whose fill changed, in fill order.
	Makers []*model.Order
	// Traded is the summed quantity of all trades.
	Traded decimal.Decimal
}

// LastPrice returns the price of the last trade, or zero when nothing traded.
func (r *MatchResult) LastPrice() decimal.Decimal {
	if len(r.Trades) == 0 {
		return decimal.Zero
	}
	return r.Trades[len(r.Trades)-1].Price
}

// Match fills incoming against resting, which must already be in matching
// priority. Both incoming and the filled resting orders are mutated in place.
// Resting orders that are closed, on the wrong side, on another instrument
// or that do not cross the incoming limit are skipped.
func Match(incoming *model.Order, resting []*model.Order, clock *model.Clock) (*MatchResult, error) {
	res := &MatchResult{Traded: decimal.Zero}
	makerSide := incoming.Side.Opposite()

	for _, maker := range resting {
		remaining := incoming.Remaining()
		if !remaining.IsPositive() {
			break
		}
		if !maker.IsOpen() || maker.Side != makerSide || maker.InstrumentID != incoming.InstrumentID {
			continue
		}
		if !model.Crosses(incoming.Side, incoming.Price, maker.Price) {
			continue
		}
		qty := decimal.Min(remaining, maker.Remaining())
		if !qty.IsPositive() {
			continue
		}

		at := clock.Now()
		if err := maker.Fill(qty, at); err != nil {
			return nil, err
		}
		if err := incoming.Fill(qty, at); err != nil {
			return nil, err
		}

		trade := &model.Trade{
			ID:           uuid.New(),
			InstrumentID: incoming.InstrumentID,
			Price:        maker.Price,
			Quantity:     qty,
			CreatedAt:    at,
		}
		if incoming.Side == model.SideBuy {
			trade.BuyOrderID, trade.SellOrderID = incoming.ID, maker.ID
		} else {
			trade.BuyOrderID, trade.SellOrderID = maker.ID, incoming.ID
		}

		res.Trades = append(res.Trades, trade)
		res.Makers = append(res.Makers, maker)
		res.Traded = res.Traded.Add(qty)
	}
	return res, nil
}
