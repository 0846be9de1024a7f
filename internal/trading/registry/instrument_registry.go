// Package registry owns the catalogue of tradable futures instruments.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const expiryLayout = "20060102"

// Spec holds the instrument facts that never change after creation and
// that order validation depends on.
type Spec struct {
	ID          string
	Kind        model.InstrumentKind
	TickSize    decimal.Decimal
	MinQuantity decimal.Decimal
}

// CommodityFutureRequest describes a new commodity futures contract.
type CommodityFutureRequest struct {
	Symbol       string          `json:"symbol" validate:"required,alphanum,max=16"`
	Expiry       time.Time       `json:"expiry" validate:"required"`
	TickSize     decimal.Decimal `json:"tick_size"`
	MinQuantity  decimal.Decimal `json:"min_quantity"`
	OpenInterest decimal.Decimal `json:"open_interest"`
}

// FXFutureRequest describes a new FX futures contract. Pair may be written
// as EURUSD or EUR/USD.
type FXFutureRequest struct {
	Pair         string          `json:"pair" validate:"required,len=6,alpha"`
	Expiry       time.Time       `json:"expiry" validate:"required"`
	TickSize     decimal.Decimal `json:"tick_size"`
	MinQuantity  decimal.Decimal `json:"min_quantity"`
	OpenInterest decimal.Decimal `json:"open_interest"`
}

// Registry creates and looks up instruments. Static specs are cached per
// instance after the first lookup.
type Registry struct {
	store    model.Store
	clock    *model.Clock
	validate *validator.Validate
	logger   *zap.Logger

	specs sync.Map // map[string]Spec
}

// NewRegistry creates a registry over store
func NewRegistry(store model.Store, clock *model.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		store:    store,
		clock:    clock,
		validate: validator.New(),
		logger:   logger.Named("registry"),
	}
}

// InstrumentID derives the identifier of a contract: SYMBOL-YYYYMMDD.
func InstrumentID(symbol string, expiry time.Time) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(symbol), expiry.UTC().Format(expiryLayout))
}

// NormalizePair uppercases an FX pair and strips separators.
func NormalizePair(pair string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(pair))
}

// CreateCommodityFuture registers a commodity futures contract.
func (r *Registry) CreateCommodityFuture(ctx context.Context, req CommodityFutureRequest) (*model.Instrument, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := r.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return r.create(ctx, model.KindCommodityFuture, req.Symbol, req.Expiry, req.TickSize, req.MinQuantity, req.OpenInterest)
}

// CreateFXFuture registers an FX futures contract identified by pair and expiry.
func (r *Registry) CreateFXFuture(ctx context.Context, req FXFutureRequest) (*model.Instrument, error) {
	req.Pair = NormalizePair(req.Pair)
	if err := r.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return r.create(ctx, model.KindFXFuture, req.Pair, req.Expiry, req.TickSize, req.MinQuantity, req.OpenInterest)
}

func (r *Registry) create(ctx context.Context, kind model.InstrumentKind, symbol string, expiry time.Time,
	tick, minQty, openInterest decimal.Decimal) (*model.Instrument, error) {
	if !tick.IsPositive() {
		return nil, errors.InvalidArgument.Explain("tick size must be positive").WithField("gt", "tick_size", "must be > 0")
	}
	if !minQty.IsPositive() {
		return nil, errors.InvalidArgument.Explain("minimum quantity must be positive").WithField("gt", "min_quantity", "must be > 0")
	}
	if openInterest.IsNegative() {
		return nil, errors.InvalidArgument.Explain("open interest must not be negative").WithField("gte", "open_interest", "must be >= 0")
	}

	now := r.clock.Now()
	expiryDate := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	inst := &model.Instrument{
		ID:           InstrumentID(symbol, expiryDate),
		Kind:         kind,
		Symbol:       symbol,
		ExpiryDate:   expiryDate,
		TickSize:     tick,
		MinQuantity:  minQty,
		LastPrice:    decimal.Zero,
		Volume:       decimal.Zero,
		OpenInterest: openInterest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateInstrument(ctx, inst); err != nil {
		return nil, err
	}
	r.specs.Store(inst.ID, specOf(inst))
	r.logger.Info("Instrument created",
		zap.String("instrument_id", inst.ID),
		zap.String("kind", string(kind)),
		zap.String("tick_size", tick.String()),
		zap.String("min_quantity", minQty.String()))
	return inst, nil
}

// Get returns the current state of an instrument.
func (r *Registry) Get(ctx context.Context, id string) (*model.Instrument, error) {
	inst, err := r.store.GetInstrument(ctx, id)
	if err != nil {
		return nil, err
	}
	r.specs.LoadOrStore(inst.ID, specOf(inst))
	return inst, nil
}

// List returns all instruments ordered by id.
func (r *Registry) List(ctx context.Context) ([]*model.Instrument, error) {
	return r.store.ListInstruments(ctx)
}

// Spec returns the static facts of an instrument, hitting the store only on
// the first lookup.
func (r *Registry) Spec(ctx context.Context, id string) (Spec, error) {
	if v, ok := r.specs.Load(id); ok {
		return v.(Spec), nil
	}
	inst, err := r.Get(ctx, id)
	if err != nil {
		return Spec{}, err
	}
	return specOf(inst), nil
}

func specOf(inst *model.Instrument) Spec {
	return Spec{ID: inst.ID, Kind: inst.Kind, TickSize: inst.TickSize, MinQuantity: inst.MinQuantity}
}

func validationError(err error) error {
	out := errors.InvalidArgument.Explain("invalid instrument request")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out = out.WithField(fe.Tag(), strings.ToLower(fe.Field()), fe.Error())
		}
	}
	return out
}
