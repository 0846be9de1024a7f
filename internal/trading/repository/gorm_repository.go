package repository

import (
	"context"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var openStatuses = []string{string(model.StatusPending), string(model.StatusPartiallyFilled)}

// GormStore implements model.Store on a SQL database through GORM. Inside a
// unit of work the instrument row and the resting orders are read with
// SELECT ... FOR UPDATE where the dialect supports it.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ model.Store = (*GormStore)(nil)

// NewGormStore creates a new GORM-based store
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.Named("gorm_store"),
	}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&instrumentRow{}, &orderRow{}, &tradeRow{}); err != nil {
		return translateError(err, "failed to migrate schema")
	}
	return nil
}

// DB exposes the underlying handle for health checks and pool metrics.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn inside a database transaction.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx model.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	if err != nil {
		translated := translateError(err, "transaction aborted")
		s.logger.Debug("Transaction rolled back", zap.Error(translated))
		return translated
	}
	return nil
}

// CreateInstrument inserts a new instrument
func (s *GormStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	if err := s.db.WithContext(ctx).Create(toInstrumentRow(inst)).Error; err != nil {
		s.logger.Error("Failed to create instrument", zap.Error(err), zap.String("instrument_id", inst.ID))
		return translateError(err, "instrument %s", inst.ID)
	}
	return nil
}

// GetInstrument retrieves an instrument by id
func (s *GormStore) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var row instrumentRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateError(err, "instrument %s not found", id)
	}
	return row.toModel(), nil
}

// ListInstruments returns all instruments ordered by id
func (s *GormStore) ListInstruments(ctx context.Context) ([]*model.Instrument, error) {
	var rows []instrumentRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, "failed to list instruments")
	}
	out := make([]*model.Instrument, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// GetOrder retrieves an order by its ID
func (s *GormStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var row orderRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateError(err, "order %s not found", id)
	}
	return row.toModel(), nil
}

// OpenOrders retrieves resting orders of one side in matching priority
func (s *GormStore) OpenOrders(ctx context.Context, instrumentID string, side model.Side) ([]*model.Order, error) {
	var rows []orderRow
	q := bookQuery(s.db.WithContext(ctx), instrumentID, side)
	if err := q.Find(&rows).Error; err != nil {
		return nil, translateError(err, "failed to load open orders for %s", instrumentID)
	}
	return orderRowsToModel(rows), nil
}

// ListOrders retrieves orders newest first
func (s *GormStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	q := s.db.WithContext(ctx).Model(&orderRow{})
	if filter.InstrumentID != "" {
		q = q.Where("instrument_id = ?", filter.InstrumentID)
	}
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	page := filter.Page.Normalize()

	var rows []orderRow
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, translateError(err, "failed to list orders")
	}
	return orderRowsToModel(rows), nil
}

// Close closes the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// bookQuery selects the open orders of one side in matching priority.
func bookQuery(db *gorm.DB, instrumentID string, side model.Side) *gorm.DB {
	q := db.Model(&orderRow{}).
		Where("instrument_id = ? AND side = ? AND status IN ?", instrumentID, string(side), openStatuses)
	if side == model.SideBuy {
		q = q.Order("price DESC")
	} else {
		q = q.Order("price ASC")
	}
	return q.Order("created_at ASC").Order("id ASC")
}

// gormTx implements model.Tx on a *gorm.DB transaction handle. Every query
// goes through tx; touching the parent handle would deadlock a single
// connection pool.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var row instrumentRow
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, translateError(err, "instrument %s not found", id)
	}
	return row.toModel(), nil
}

func (t *gormTx) SaveInstrument(ctx context.Context, inst *model.Instrument) error {
	result := t.db.WithContext(ctx).Model(&instrumentRow{}).
		Where("id = ?", inst.ID).
		Updates(map[string]interface{}{
			"last_price":    inst.LastPrice,
			"volume":        inst.Volume,
			"open_interest": inst.OpenInterest,
			"updated_at":    inst.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "failed to update instrument %s", inst.ID)
	}
	if result.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "instrument %s not found", inst.ID)
	}
	return nil
}

func (t *gormTx) CreateOrder(ctx context.Context, order *model.Order) error {
	if err := t.db.WithContext(ctx).Create(toOrderRow(order)).Error; err != nil {
		return translateError(err, "order %s", order.ID)
	}
	return nil
}

func (t *gormTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var row orderRow
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, translateError(err, "order %s not found", id)
	}
	return row.toModel(), nil
}

func (t *gormTx) UpdateOrder(ctx context.Context, order *model.Order) error {
	result := t.db.WithContext(ctx).Model(&orderRow{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"filled_quantity": order.FilledQuantity,
			"status":          string(order.Status),
			"cancelled":       order.Cancelled,
			"updated_at":      order.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "failed to update order %s", order.ID)
	}
	if result.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "order %s not found", order.ID)
	}
	return nil
}

func (t *gormTx) RestingOrders(ctx context.Context, instrumentID string, side model.Side, limit decimal.Decimal) ([]*model.Order, error) {
	q := bookQuery(t.db.WithContext(ctx), instrumentID, side).
		Clauses(clause.Locking{Strength: "UPDATE"})
	if side == model.SideSell {
		q = q.Where("price <= ?", limit)
	} else {
		q = q.Where("price >= ?", limit)
	}
	var rows []orderRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translateError(err, "failed to load resting orders for %s", instrumentID)
	}
	return orderRowsToModel(rows), nil
}
