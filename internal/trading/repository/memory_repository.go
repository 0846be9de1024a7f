package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

type bookID struct {
	instrument string
	side       model.Side
}

// MemoryStore keeps everything in process memory. Open orders are indexed in
// one B-tree per instrument side ordered by matching priority. Units of work
// stage their writes and validate read versions on commit, so a unit whose
// reads were overwritten meanwhile fails with ConcurrencyConflict.
type MemoryStore struct {
	mu sync.RWMutex

	instruments map[string]*model.Instrument
	instVer     map[string]uint64
	orders      map[uuid.UUID]*model.Order
	orderVer    map[uuid.UUID]uint64

	books       map[bookID]*btree.BTreeG[*model.Order]
	ordersByAge *btree.BTreeG[*model.Order]
	trades      *btree.BTreeG[*model.Trade]
}

var _ model.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments: make(map[string]*model.Instrument),
		instVer:     make(map[string]uint64),
		orders:      make(map[uuid.UUID]*model.Order),
		orderVer:    make(map[uuid.UUID]uint64),
		books:       make(map[bookID]*btree.BTreeG[*model.Order]),
		ordersByAge: btree.NewBTreeGOptions(model.OrderNewer, btree.Options{NoLocks: true}),
		trades:      btree.NewBTreeGOptions(model.TradeNewer, btree.Options{NoLocks: true}),
	}
}

func (s *MemoryStore) book(instrumentID string, side model.Side) *btree.BTreeG[*model.Order] {
	id := bookID{instrument: instrumentID, side: side}
	b, ok := s.books[id]
	if !ok {
		b = btree.NewBTreeGOptions(model.PriorityLess, btree.Options{NoLocks: true})
		s.books[id] = b
	}
	return b
}

// WithTx runs fn against a staging view and commits the staged writes.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx model.Tx) error) error {
	tx := &memoryTx{
		s:           s,
		instruments: make(map[string]*model.Instrument),
		orders:      make(map[uuid.UUID]*model.Order),
		created:     make(map[uuid.UUID]bool),
		readInst:    make(map[string]uint64),
		readOrders:  make(map[uuid.UUID]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.ConcurrencyConflict.Explain("transaction aborted before commit").Wrap(err)
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range tx.readInst {
		if s.instVer[id] != v {
			return errors.ConcurrencyConflict.Explain("instrument %s changed during transaction", id)
		}
	}
	for id, v := range tx.readOrders {
		if s.orderVer[id] != v {
			return errors.ConcurrencyConflict.Explain("order %s changed during transaction", id)
		}
	}
	for id := range tx.created {
		if _, exists := s.orders[id]; exists {
			return errors.InvalidState.Explain("order %s: already exists", id)
		}
	}

	for id, inst := range tx.instruments {
		s.instruments[id] = inst
		s.instVer[id]++
	}
	for id, o := range tx.orders {
		b := s.book(o.InstrumentID, o.Side)
		if o.IsOpen() {
			b.Set(o)
		} else {
			b.Delete(o)
		}
		s.orders[id] = o
		s.ordersByAge.Set(o)
		s.orderVer[id]++
	}
	for _, t := range tx.trades {
		s.trades.Set(t)
	}
	return nil
}

// CreateInstrument inserts a new instrument
func (s *MemoryStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instruments[inst.ID]; exists {
		return errors.InvalidState.Explain("instrument %s: already exists", inst.ID)
	}
	s.instruments[inst.ID] = inst.Clone()
	s.instVer[inst.ID]++
	return nil
}

// GetInstrument retrieves an instrument by id
func (s *MemoryStore) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[id]
	if !ok {
		return nil, errors.NotFound.Explain("instrument %s not found", id)
	}
	return inst.Clone(), nil
}

// ListInstruments returns all instruments ordered by id
func (s *MemoryStore) ListInstruments(ctx context.Context) ([]*model.Instrument, error) {
	s.mu.RLock()
	out := make([]*model.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetOrder retrieves an order by its ID
func (s *MemoryStore) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.NotFound.Explain("order %s not found", id)
	}
	return o.Clone(), nil
}

// OpenOrders retrieves resting orders of one side in matching priority
func (s *MemoryStore) OpenOrders(ctx context.Context, instrumentID string, side model.Side) ([]*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Order, 0)
	if b, ok := s.books[bookID{instrument: instrumentID, side: side}]; ok {
		b.Scan(func(o *model.Order) bool {
			out = append(out, o.Clone())
			return true
		})
	}
	return out, nil
}

// ListOrders retrieves orders newest first
func (s *MemoryStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	page := filter.Page.Normalize()
	skip := page.Offset()
	out := make([]*model.Order, 0, page.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.ordersByAge.Scan(func(o *model.Order) bool {
		if !filter.Matches(o) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, o.Clone())
		return len(out) < page.Limit
	})
	return out, nil
}

// ListTrades retrieves trades newest first
func (s *MemoryStore) ListTrades(ctx context.Context, filter model.TradeFilter) ([]*model.Trade, error) {
	page := filter.Page.Normalize()
	skip := page.Offset()
	out := make([]*model.Trade, 0, page.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.trades.Scan(func(t *model.Trade) bool {
		if filter.InstrumentID != "" && t.InstrumentID != filter.InstrumentID {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		c := *t
		out = append(out, &c)
		return len(out) < page.Limit
	})
	return out, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// memoryTx stages writes until commit. Reads see the staged state first.
type memoryTx struct {
	s *MemoryStore

	instruments map[string]*model.Instrument
	orders      map[uuid.UUID]*model.Order
	created     map[uuid.UUID]bool
	trades      []*model.Trade

	readInst   map[string]uint64
	readOrders map[uuid.UUID]uint64
}

func (t *memoryTx) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	if inst, ok := t.instruments[id]; ok {
		return inst.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	inst, ok := t.s.instruments[id]
	if !ok {
		return nil, errors.NotFound.Explain("instrument %s not found", id)
	}
	if _, seen := t.readInst[id]; !seen {
		t.readInst[id] = t.s.instVer[id]
	}
	return inst.Clone(), nil
}

func (t *memoryTx) SaveInstrument(ctx context.Context, inst *model.Instrument) error {
	if _, err := t.GetInstrument(ctx, inst.ID); err != nil {
		return err
	}
	t.instruments[inst.ID] = inst.Clone()
	return nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order *model.Order) error {
	if _, ok := t.orders[order.ID]; ok {
		return errors.InvalidState.Explain("order %s: already exists", order.ID)
	}
	t.s.mu.RLock()
	_, exists := t.s.orders[order.ID]
	t.s.mu.RUnlock()
	if exists {
		return errors.InvalidState.Explain("order %s: already exists", order.ID)
	}
	t.orders[order.ID] = order.Clone()
	t.created[order.ID] = true
	return nil
}

func (t *memoryTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	if o, ok := t.orders[id]; ok {
		return o.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.orders[id]
	if !ok {
		return nil, errors.NotFound.Explain("order %s not found", id)
	}
	t.markRead(id)
	return o.Clone(), nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, order *model.Order) error {
	if _, err := t.GetOrder(ctx, order.ID); err != nil {
		return err
	}
	t.orders[order.ID] = order.Clone()
	return nil
}

func (t *memoryTx) RestingOrders(ctx context.Context, instrumentID string, side model.Side, limit decimal.Decimal) ([]*model.Order, error) {
	incoming := side.Opposite()
	seen := make(map[uuid.UUID]bool)
	out := make([]*model.Order, 0)

	t.s.mu.RLock()
	if b, ok := t.s.books[bookID{instrument: instrumentID, side: side}]; ok {
		b.Scan(func(o *model.Order) bool {
			if !model.Crosses(incoming, limit, o.Price) {
				return false
			}
			seen[o.ID] = true
			t.markRead(o.ID)
			if staged, ok := t.orders[o.ID]; ok {
				o = staged
			}
			if o.IsOpen() {
				out = append(out, o.Clone())
			}
			return true
		})
	}
	t.s.mu.RUnlock()

	for id, o := range t.orders {
		if seen[id] || o.InstrumentID != instrumentID || o.Side != side || !o.IsOpen() {
			continue
		}
		if model.Crosses(incoming, limit, o.Price) {
			out = append(out, o.Clone())
		}
	}
	model.SortByPriority(out)
	return out, nil
}

func (t *memoryTx) CreateTrade(ctx context.Context, trade *model.Trade) error {
	c := *trade
	t.trades = append(t.trades, &c)
	return nil
}

// markRead records the committed version of an order; callers hold s.mu.
func (t *memoryTx) markRead(id uuid.UUID) {
	if _, seen := t.readOrders[id]; !seen && !t.created[id] {
		t.readOrders[id] = t.s.orderVer[id]
	}
}
