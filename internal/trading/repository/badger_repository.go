package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Key layout:
//
//	i:<instrument>                      instrument JSON
//	o:<order>                           order JSON
//	b:<instrument>:<side>:<order>       open-order index
//	ot:<micros>:<order>                 order time index
//	t:<micros>:<trade>                  trade JSON
//	ti:<instrument>:<micros>:<trade>    trade JSON by instrument
const (
	prefixInstrument = "i:"
	prefixOrder      = "o:"
	prefixBook       = "b:"
	prefixOrderTime  = "ot:"
	prefixTrade      = "t:"
	prefixTradeInst  = "ti:"
)

func instrumentKey(id string) []byte { return []byte(prefixInstrument + id) }
func orderKey(id uuid.UUID) []byte   { return []byte(prefixOrder + id.String()) }
func bookPrefix(instrumentID string, side model.Side) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixBook, instrumentID, side))
}
func bookKey(o *model.Order) []byte {
	return append(bookPrefix(o.InstrumentID, o.Side), o.ID.String()...)
}
func orderTimeKey(o *model.Order) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixOrderTime, o.CreatedAt.UnixMicro(), o.ID))
}
func tradeKey(t *model.Trade) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTrade, t.CreatedAt.UnixMicro(), t.ID))
}
func tradeInstrumentPrefix(instrumentID string) []byte {
	return []byte(prefixTradeInst + instrumentID + ":")
}
func tradeInstrumentKey(t *model.Trade) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", tradeInstrumentPrefix(t.InstrumentID), t.CreatedAt.UnixMicro(), t.ID))
}

// BadgerStore is an embedded implementation of model.Store on BadgerDB. Each
// unit of work is one badger read-write transaction; conflicting commits are
// reported as ConcurrencyConflict.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

var _ model.Store = (*BadgerStore)(nil)

// NewBadgerStore opens a BadgerDB at path.
func NewBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // disable internal logging
	return OpenBadgerStore(opts, logger)
}

// OpenBadgerStore opens a BadgerDB with explicit options, e.g. in-memory for tests.
func OpenBadgerStore(opts badger.Options, logger *zap.Logger) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db, logger: logger.Named("badger_store")}, nil
}

// WithTx runs fn inside one badger transaction.
func (s *BadgerStore) WithTx(ctx context.Context, fn func(tx model.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.ConcurrencyConflict.Explain("transaction not started").Wrap(err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if err != nil {
		translated := translateError(err, "transaction aborted")
		s.logger.Debug("Transaction discarded", zap.Error(translated))
		return translated
	}
	return nil
}

// CreateInstrument inserts a new instrument
func (s *BadgerStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := instrumentKey(inst.ID)
		if _, err := txn.Get(key); err == nil {
			return errors.InvalidState.Explain("instrument %s: already exists", inst.ID)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return setJSON(txn, key, inst)
	})
	return translateError(err, "instrument %s", inst.ID)
}

// GetInstrument retrieves an instrument by id
func (s *BadgerStore) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var inst model.Instrument
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, instrumentKey(id), &inst)
	})
	if err != nil {
		return nil, translateError(err, "instrument %s not found", id)
	}
	return &inst, nil
}

// ListInstruments returns all instruments ordered by id
func (s *BadgerStore) ListInstruments(ctx context.Context) ([]*model.Instrument, error) {
	out := make([]*model.Instrument, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixInstrument)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var inst model.Instrument
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &inst) }); err != nil {
				return err
			}
			out = append(out, &inst)
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to list instruments")
	}
	return out, nil
}

// GetOrder retrieves an order by its ID
func (s *BadgerStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, orderKey(id), &o)
	})
	if err != nil {
		return nil, translateError(err, "order %s not found", id)
	}
	return &o, nil
}

// OpenOrders retrieves resting orders of one side in matching priority
func (s *BadgerStore) OpenOrders(ctx context.Context, instrumentID string, side model.Side) ([]*model.Order, error) {
	var out []*model.Order
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = scanBook(txn, instrumentID, side, nil)
		return err
	})
	if err != nil {
		return nil, translateError(err, "failed to load open orders for %s", instrumentID)
	}
	return out, nil
}

// ListOrders retrieves orders newest first
func (s *BadgerStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	page := filter.Page.Normalize()
	skip := page.Offset()
	out := make([]*model.Order, 0, page.Limit)

	err := s.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, []byte(prefixOrderTime), false, func(item *badger.Item) (bool, error) {
			id, err := uuid.Parse(lastSegment(item.Key()))
			if err != nil {
				return false, err
			}
			var o model.Order
			if err := getJSON(txn, orderKey(id), &o); err != nil {
				return false, err
			}
			if !filter.Matches(&o) {
				return true, nil
			}
			if skip > 0 {
				skip--
				return true, nil
			}
			out = append(out, &o)
			return len(out) < page.Limit, nil
		})
	})
	if err != nil {
		return nil, translateError(err, "failed to list orders")
	}
	return out, nil
}

// ListTrades retrieves trades newest first
func (s *BadgerStore) ListTrades(ctx context.Context, filter model.TradeFilter) ([]*model.Trade, error) {
	page := filter.Page.Normalize()
	skip := page.Offset()
	out := make([]*model.Trade, 0, page.Limit)

	prefix := []byte(prefixTrade)
	if filter.InstrumentID != "" {
		prefix = tradeInstrumentPrefix(filter.InstrumentID)
	}
	err := s.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, prefix, true, func(item *badger.Item) (bool, error) {
			if skip > 0 {
				skip--
				return true, nil
			}
			var t model.Trade
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &t) }); err != nil {
				return false, err
			}
			out = append(out, &t)
			return len(out) < page.Limit, nil
		})
	})
	if err != nil {
		return nil, translateError(err, "failed to list trades")
	}
	return out, nil
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerTx implements model.Tx on one badger transaction.
type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var inst model.Instrument
	if err := getJSON(t.txn, instrumentKey(id), &inst); err != nil {
		return nil, translateError(err, "instrument %s not found", id)
	}
	return &inst, nil
}

func (t *badgerTx) SaveInstrument(ctx context.Context, inst *model.Instrument) error {
	key := instrumentKey(inst.ID)
	if _, err := t.txn.Get(key); err != nil {
		return translateError(err, "instrument %s not found", inst.ID)
	}
	return translateError(setJSON(t.txn, key, inst), "failed to update instrument %s", inst.ID)
}

func (t *badgerTx) CreateOrder(ctx context.Context, order *model.Order) error {
	key := orderKey(order.ID)
	if _, err := t.txn.Get(key); err == nil {
		return errors.InvalidState.Explain("order %s: already exists", order.ID)
	} else if err != badger.ErrKeyNotFound {
		return translateError(err, "order %s", order.ID)
	}
	if err := setJSON(t.txn, key, order); err != nil {
		return translateError(err, "order %s", order.ID)
	}
	if err := t.txn.Set(orderTimeKey(order), []byte{}); err != nil {
		return translateError(err, "order %s", order.ID)
	}
	if order.IsOpen() {
		if err := t.txn.Set(bookKey(order), []byte{}); err != nil {
			return translateError(err, "order %s", order.ID)
		}
	}
	return nil
}

func (t *badgerTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	if err := getJSON(t.txn, orderKey(id), &o); err != nil {
		return nil, translateError(err, "order %s not found", id)
	}
	return &o, nil
}

func (t *badgerTx) UpdateOrder(ctx context.Context, order *model.Order) error {
	key := orderKey(order.ID)
	if _, err := t.txn.Get(key); err != nil {
		return translateError(err, "order %s not found", order.ID)
	}
	if err := setJSON(t.txn, key, order); err != nil {
		return translateError(err, "failed to update order %s", order.ID)
	}
	if !order.IsOpen() {
		if err := t.txn.Delete(bookKey(order)); err != nil {
			return translateError(err, "failed to update order %s", order.ID)
		}
	}
	return nil
}

func (t *badgerTx) RestingOrders(ctx context.Context, instrumentID string, side model.Side, limit decimal.Decimal) ([]*model.Order, error) {
	incoming := side.Opposite()
	out, err := scanBook(t.txn, instrumentID, side, func(o *model.Order) bool {
		return model.Crosses(incoming, limit, o.Price)
	})
	if err != nil {
		return nil, translateError(err, "failed to load resting orders for %s", instrumentID)
	}
	return out, nil
}

func (t *badgerTx) CreateTrade(ctx context.Context, trade *model.Trade) error {
	val, err := json.Marshal(trade)
	if err != nil {
		return translateError(err, "trade %s", trade.ID)
	}
	if err := t.txn.Set(tradeKey(trade), val); err != nil {
		return translateError(err, "trade %s", trade.ID)
	}
	if err := t.txn.Set(tradeInstrumentKey(trade), val); err != nil {
		return translateError(err, "trade %s", trade.ID)
	}
	return nil
}

// scanBook loads the open orders indexed under one side of an instrument,
// keeps those accepted by keep (all when nil) and sorts them by priority.
func scanBook(txn *badger.Txn, instrumentID string, side model.Side, keep func(*model.Order) bool) ([]*model.Order, error) {
	prefix := bookPrefix(instrumentID, side)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id, err := uuid.Parse(lastSegment(it.Item().Key()))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	out := make([]*model.Order, 0, len(ids))
	for _, id := range ids {
		var o model.Order
		if err := getJSON(txn, orderKey(id), &o); err != nil {
			return nil, err
		}
		if !o.IsOpen() || (keep != nil && !keep(&o)) {
			continue
		}
		out = append(out, &o)
	}
	sort.SliceStable(out, func(i, j int) bool { return model.PriorityLess(out[i], out[j]) })
	return out, nil
}

// reverseScan walks keys under prefix from last to first until fn returns false.
func reverseScan(txn *badger.Txn, prefix []byte, prefetch bool, fn func(item *badger.Item) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = prefetch
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		more, err := fn(it.Item())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func lastSegment(key []byte) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return string(key[i+1:])
		}
	}
	return string(key)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}
