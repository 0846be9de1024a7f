package repository

import (
	"context"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"go.uber.org/zap"
)

// CreateTrade appends a trade inside the transaction
func (t *gormTx) CreateTrade(ctx context.Context, trade *model.Trade) error {
	if err := t.db.WithContext(ctx).Create(toTradeRow(trade)).Error; err != nil {
		return translateError(err, "trade %s", trade.ID)
	}
	return nil
}

// ListTrades retrieves trades newest first
func (s *GormStore) ListTrades(ctx context.Context, filter model.TradeFilter) ([]*model.Trade, error) {
	q := s.db.WithContext(ctx).Model(&tradeRow{})
	if filter.InstrumentID != "" {
		q = q.Where("instrument_id = ?", filter.InstrumentID)
	}
	page := filter.Page.Normalize()

	var rows []tradeRow
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err), zap.String("instrument_id", filter.InstrumentID))
		return nil, translateError(err, "failed to list trades")
	}
	out := make([]*model.Trade, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}
