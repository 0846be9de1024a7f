// Package lock provides per-instrument mutual exclusion for the matching
// engine, either within one process or across processes through redis.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/Aidin1998/pincex_futures/pkg/metrics"
)

// Locker serialises work on a key. The returned release func must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process keyed mutex with an acquisition timeout.
type LocalLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates a keyed mutex; Acquire gives up after timeout.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout: timeout,
		slots:   make(map[string]chan struct{}),
	}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free, the timeout elapses or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	start := time.Now()

	select {
	case ch <- struct{}{}:
	default:
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		select {
		case ch <- struct{}{}:
		case <-timer.C:
			return nil, errors.ConcurrencyConflict.Explain("timed out after %s waiting for lock on %s", l.timeout, key)
		case <-ctx.Done():
			return nil, errors.ConcurrencyConflict.Explain("gave up waiting for lock on %s", key).Wrap(ctx.Err())
		}
	}
	metrics.LockWait.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
