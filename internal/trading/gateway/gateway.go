// Package gateway validates client requests and hands them to the matching
// engine. Nothing reaches the store before validation passes.
package gateway

import (
	"context"
	"strings"

	"github.com/Aidin1998/pincex_futures/internal/trading/engine"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/Aidin1998/pincex_futures/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Depth limits
const (
	DefaultDepthLevels = 10
	MaxDepthLevels     = 100
)

// SubmitOrderRequest is a new limit order
type SubmitOrderRequest struct {
	InstrumentID string          `json:"instrument_id" validate:"required,max=64"`
	OwnerID      string          `json:"owner_id" validate:"required,max=64"`
	Side         model.Side      `json:"side" validate:"required,oneof=BUY SELL"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// SubmitOrderResult is the final state of a submitted order after matching
type SubmitOrderResult struct {
	Order         *model.Order    `json:"order"`
	Trades        []*model.Trade  `json:"trades"`
	PriceAdjusted bool            `json:"price_adjusted"`
	OriginalPrice decimal.Decimal `json:"original_price"`
}

// CancelOrderRequest asks to cancel the remainder of an order
type CancelOrderRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	OwnerID string    `json:"owner_id" validate:"required,max=64"`
}

// Gateway is the entry point for order flow
type Gateway struct {
	engine   *engine.Engine
	registry *registry.Registry
	store    model.Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGateway creates a new order gateway
func NewGateway(eng *engine.Engine, reg *registry.Registry, store model.Store, logger *zap.Logger) *Gateway {
	return &Gateway{
		engine:   eng,
		registry: reg,
		store:    store,
		validate: validator.New(),
		logger:   logger.Named("gateway"),
	}
}

// SubmitOrder validates the request, aligns the price to the instrument
// tick and matches the order synchronously.
func (g *Gateway) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error) {
	req.sanitize()
	cmd, adjusted, err := g.prepare(ctx, req)
	if err != nil {
		if errors.Is(err, errors.InvalidArgument) {
			metrics.OrdersSubmitted.WithLabelValues(string(req.Side), "rejected").Inc()
		}
		g.logger.Debug("Order rejected", zap.String("instrument_id", req.InstrumentID), zap.Error(err))
		return nil, err
	}

	res, err := g.engine.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &SubmitOrderResult{
		Order:         res.Order,
		Trades:        res.Trades,
		PriceAdjusted: adjusted,
		OriginalPrice: req.Price,
	}, nil
}

func (g *Gateway) prepare(ctx context.Context, req SubmitOrderRequest) (engine.SubmitCommand, bool, error) {
	if err := g.validate.Struct(req); err != nil {
		return engine.SubmitCommand{}, false, validationError(err)
	}
	if err := positive("price", req.Price); err != nil {
		return engine.SubmitCommand{}, false, err
	}
	if err := positive("quantity", req.Quantity); err != nil {
		return engine.SubmitCommand{}, false, err
	}

	spec, err := g.registry.Spec(ctx, req.InstrumentID)
	if err != nil {
		return engine.SubmitCommand{}, false, err
	}
	if err := checkQuantity(req.Quantity, spec); err != nil {
		return engine.SubmitCommand{}, false, err
	}

	price, adjusted := RoundToTick(req.Price, spec.TickSize)
	if !price.IsPositive() {
		return engine.SubmitCommand{}, false, errors.InvalidArgument.
			Explain("price %s rounds to zero at tick %s", req.Price, spec.TickSize).
			WithField("tick", "price", "must be at least one tick")
	}
	if adjusted {
		g.logger.Debug("Price aligned to tick",
			zap.String("instrument_id", spec.ID),
			zap.String("original", req.Price.String()),
			zap.String("adjusted", price.String()))
	}

	return engine.SubmitCommand{
		InstrumentID: spec.ID,
		OwnerID:      req.OwnerID,
		Side:         req.Side,
		Price:        price,
		Quantity:     req.Quantity,
	}, adjusted, nil
}

// CancelOrder cancels the remaining quantity of an open order
func (g *Gateway) CancelOrder(ctx context.Context, req CancelOrderRequest) (*model.Order, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := g.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return g.engine.Cancel(ctx, req.OrderID, req.OwnerID)
}

// GetOrder returns one order by id
func (g *Gateway) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return g.store.GetOrder(ctx, id)
}

// ListOrders returns orders newest first
func (g *Gateway) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidArgument.
			Explain("unknown order status %q", filter.Status).
			WithField("oneof", "status", "must be one of PENDING PARTIALLY_FILLED COMPLETED CANCELLED")
	}
	if err := checkPage(filter.Page); err != nil {
		return nil, err
	}
	filter.Page = filter.Page.Normalize()
	return g.store.ListOrders(ctx, filter)
}

// ListTrades returns trades newest first
func (g *Gateway) ListTrades(ctx context.Context, filter model.TradeFilter) ([]*model.Trade, error) {
	if err := checkPage(filter.Page); err != nil {
		return nil, err
	}
	filter.Page = filter.Page.Normalize()
	return g.store.ListTrades(ctx, filter)
}

// Depth aggregates the resting quantity per price level, bids best first
// and asks best first.
func (g *Gateway) Depth(ctx context.Context, instrumentID string, levels int) (*model.Depth, error) {
	if levels < 0 {
		return nil, errors.InvalidArgument.Explain("levels must not be negative")
	}
	if levels == 0 {
		levels = DefaultDepthLevels
	}
	if levels > MaxDepthLevels {
		levels = MaxDepthLevels
	}

	spec, err := g.registry.Spec(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	bids, err := g.store.OpenOrders(ctx, spec.ID, model.SideBuy)
	if err != nil {
		return nil, err
	}
	asks, err := g.store.OpenOrders(ctx, spec.ID, model.SideSell)
	if err != nil {
		return nil, err
	}
	return &model.Depth{
		InstrumentID: spec.ID,
		Bids:         model.AggregateLevels(bids, levels),
		Asks:         model.AggregateLevels(asks, levels),
	}, nil
}

func checkPage(p model.Page) error {
	if p.Page < 0 {
		return errors.InvalidArgument.Explain("page must not be negative").WithField("gte", "page", "must be >= 1")
	}
	if p.Limit < 0 {
		return errors.InvalidArgument.Explain("limit must not be negative").WithField("gte", "limit", "must be >= 1")
	}
	return nil
}
