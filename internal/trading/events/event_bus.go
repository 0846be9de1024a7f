package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"go.uber.org/zap"
)

// Event is the envelope for everything published after a commit
type Event struct {
	Topic        string      `json:"topic"`
	Type         string      `json:"type"`
	InstrumentID string      `json:"instrument_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// Publisher receives committed events in commit order. Implementations must
// not block the caller for long; failures are reported, never retried here.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, events ...Event) error { return nil }

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InMemoryEventBus fans events out to in-process subscribers over buffered
// channels. A subscriber that falls behind loses events instead of stalling
// the publisher.
type InMemoryEventBus struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	metrics EventBusMetrics
}

// EventBusMetrics counts bus activity
type EventBusMetrics struct {
	Published atomic.Int64
	Delivered atomic.Int64
	Dropped   atomic.Int64
}

type subscription struct {
	ch chan Event
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		logger: logger.Named("event_bus"),
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers each event to all subscribers of its topic
func (bus *InMemoryEventBus) Publish(ctx context.Context, events ...Event) error {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	for _, event := range events {
		bus.metrics.Published.Add(1)
		for sub := range bus.subs[event.Topic] {
			select {
			case sub.ch <- event:
				bus.metrics.Delivered.Add(1)
			default:
				bus.metrics.Dropped.Add(1)
				bus.logger.Warn("Subscriber too slow, event dropped",
					zap.String("topic", event.Topic), zap.String("type", event.Type))
			}
		}
	}
	return nil
}

// Subscribe registers a buffered channel for topic. The returned cancel func
// unregisters and closes the channel.
func (bus *InMemoryEventBus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, buffer)}
	bus.mu.Lock()
	if bus.subs[topic] == nil {
		bus.subs[topic] = make(map[*subscription]struct{})
	}
	bus.subs[topic][sub] = struct{}{}
	bus.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			bus.mu.Lock()
			delete(bus.subs[topic], sub)
			bus.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of subscribers on topic
func (bus *InMemoryEventBus) Subscribers(topic string) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.subs[topic])
}

// Metrics returns the bus counters
func (bus *InMemoryEventBus) Metrics() (published, delivered, dropped int64) {
	return bus.metrics.Published.Load(), bus.metrics.Delivered.Load(), bus.metrics.Dropped.Load()
}
