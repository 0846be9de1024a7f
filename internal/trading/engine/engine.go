package engine

import (
	"context"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/events"
	"github.com/Aidin1998/pincex_futures/internal/trading/lock"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/Aidin1998/pincex_futures/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/Aidin1998/pincex_futures/internal/trading/engine"

// SubmitCommand is an order that already passed gateway validation.
type SubmitCommand struct {
	InstrumentID string
	OwnerID      string
	Side         model.Side
	Price        decimal.Decimal
	Quantity     decimal.Decimal
}

// SubmitResult is the committed state after matching one order
type SubmitResult struct {
	Order      *model.Order
	Trades     []*model.Trade
	Makers     []*model.Order
	Instrument *model.Instrument
}

// Engine matches orders for every instrument. Each submission and each
// cancellation holds the instrument lock and runs as one store unit of work.
type Engine struct {
	store     model.Store
	locker    lock.Locker
	clock     *model.Clock
	publisher events.Publisher
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithPublisher sets where committed events go.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock shares a clock with other components.
func WithClock(c *model.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates a new matching engine
func NewEngine(store model.Store, locker lock.Locker, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		locker:    locker,
		clock:     model.NewClock(),
		publisher: events.NopPublisher{},
		tracer:    otel.Tracer(tracerName),
		logger:    logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit inserts a new order and matches it against the opposite side of
// the book. Finding no counterparty is not an error; the order rests.
// Events are published before the instrument lock is released, so every
// publisher sees the changes of one instrument in commit order.
func (e *Engine) Submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Submit", trace.WithAttributes(
		attribute.String("instrument_id", cmd.InstrumentID),
		attribute.String("side", string(cmd.Side)),
	))
	defer span.End()

	release, err := e.locker.Acquire(ctx, cmd.InstrumentID)
	if err != nil {
		return nil, e.rejectSubmit(span, cmd.Side, err)
	}
	defer release()

	res, err := e.submit(ctx, cmd)
	if err != nil {
		return nil, e.rejectSubmit(span, cmd.Side, err)
	}
	metrics.OrdersSubmitted.WithLabelValues(string(cmd.Side), "accepted").Inc()
	span.SetAttributes(
		attribute.String("order_id", res.Order.ID.String()),
		attribute.Int("trades", len(res.Trades)),
	)

	e.afterSubmit(ctx, res)
	return res, nil
}

func (e *Engine) rejectSubmit(span trace.Span, side model.Side, err error) error {
	e.observeFailure(span, "submit", err)
	metrics.OrdersSubmitted.WithLabelValues(string(side), outcome(err)).Inc()
	return err
}

// submit runs the matching unit of work; the caller holds the instrument lock.
func (e *Engine) submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	start := time.Now()
	defer func() { metrics.MatchLatency.Observe(time.Since(start).Seconds()) }()

	var res *SubmitResult
	err := e.store.WithTx(ctx, func(tx model.Tx) error {
		inst, err := tx.GetInstrument(ctx, cmd.InstrumentID)
		if err != nil {
			return err
		}

		order := model.NewOrder(cmd.InstrumentID, cmd.OwnerID, cmd.Side, cmd.Price, cmd.Quantity, e.clock.Now())
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		resting, err := tx.RestingOrders(ctx, cmd.InstrumentID, cmd.Side.Opposite(), cmd.Price)
		if err != nil {
			return err
		}
		model.SortByPriority(resting)

		match, err := Match(order, resting, e.clock)
		if err != nil {
			return err
		}

		for i, trade := range match.Trades {
			if err := tx.UpdateOrder(ctx, match.Makers[i]); err != nil {
				return err
			}
			if err := tx.CreateTrade(ctx, trade); err != nil {
				return err
			}
			e.logger.Debug("Trade executed",
				zap.String("trade_id", trade.ID.String()),
				zap.String("instrument_id", trade.InstrumentID),
				zap.String("price", trade.Price.String()),
				zap.String("quantity", trade.Quantity.String()))
		}

		if len(match.Trades) > 0 {
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
			if err := inst.ApplyMatch(match.LastPrice(), match.Traded, order.UpdatedAt); err != nil {
				return err
			}
			if err := tx.SaveInstrument(ctx, inst); err != nil {
				return err
			}
		}

		res = &SubmitResult{Order: order, Trades: match.Trades, Makers: match.Makers, Instrument: inst}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Order matched",
		zap.String("order_id", res.Order.ID.String()),
		zap.String("instrument_id", res.Order.InstrumentID),
		zap.String("side", string(res.Order.Side)),
		zap.String("status", string(res.Order.Status)),
		zap.String("filled", res.Order.FilledQuantity.String()),
		zap.Int("trades", len(res.Trades)))
	return res, nil
}

// afterSubmit runs the post-commit side effects. Their failures are logged
// and never undo the committed match.
func (e *Engine) afterSubmit(ctx context.Context, res *SubmitResult) {
	if len(res.Trades) > 0 {
		metrics.TradesExecuted.WithLabelValues(res.Order.InstrumentID).Add(float64(len(res.Trades)))
		traded := decimal.Zero
		for _, t := range res.Trades {
			traded = traded.Add(t.Quantity)
		}
		metrics.MatchedVolume.WithLabelValues(res.Order.InstrumentID).Add(traded.InexactFloat64())
	}

	evts := make([]events.Event, 0, 2*len(res.Trades)+2)
	for _, t := range res.Trades {
		evts = append(evts, events.TradeExecuted(t))
	}
	for _, m := range res.Makers {
		evts = append(evts, events.OrderChanged(m))
	}
	evts = append(evts, events.OrderChanged(res.Order))
	if len(res.Trades) > 0 {
		evts = append(evts, events.InstrumentUpdated(res.Instrument))
	}
	e.publish(ctx, "submit", evts)
}

// Cancel cancels the remaining quantity of an open order. Only the owner may
// cancel; a closed order or a foreign owner yields InvalidState.
func (e *Engine) Cancel(ctx context.Context, orderID uuid.UUID, ownerID string) (*model.Order, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Cancel", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
	))
	defer span.End()

	existing, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.observeFailure(span, "cancel", err)
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, existing.InstrumentID)
	if err != nil {
		e.observeFailure(span, "cancel", err)
		return nil, err
	}
	defer release()

	order, err := e.cancel(ctx, existing.InstrumentID, orderID, ownerID)
	if err != nil {
		e.observeFailure(span, "cancel", err)
		return nil, err
	}
	metrics.OrdersCancelled.Inc()
	e.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("instrument_id", order.InstrumentID),
		zap.String("filled", order.FilledQuantity.String()))

	e.publish(ctx, "cancel", []events.Event{events.OrderChanged(order)})
	return order, nil
}

// cancel runs the cancellation unit of work; the caller holds the instrument lock.
func (e *Engine) cancel(ctx context.Context, instrumentID string, orderID uuid.UUID, ownerID string) (*model.Order, error) {
	var order *model.Order
	err := e.store.WithTx(ctx, func(tx model.Tx) error {
		if _, err := tx.GetInstrument(ctx, instrumentID); err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.OwnerID != ownerID {
			return errors.InvalidState.Explain("order %s does not belong to %s", orderID, ownerID)
		}
		if err := o.Cancel(e.clock.Now()); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (e *Engine) publish(ctx context.Context, operation string, evts []events.Event) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), evts...); err != nil {
		metrics.PublishFailures.WithLabelValues(operation).Inc()
		e.logger.Error("Failed to publish events", zap.String("operation", operation), zap.Error(err))
	}
}

func (e *Engine) observeFailure(span trace.Span, operation string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, errors.ConcurrencyConflict) {
		metrics.Conflicts.WithLabelValues(operation).Inc()
	}
	if errors.StatusOf(err) >= 500 {
		e.logger.Error("Operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errors.InvalidArgument), errors.Is(err, errors.NotFound), errors.Is(err, errors.InvalidState):
		return "rejected"
	default:
		return "failed"
	}
}
