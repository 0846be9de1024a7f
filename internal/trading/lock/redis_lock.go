package lock

import (
	"context"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/Aidin1998/pincex_futures/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "futures:lock:"

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-process lock built on SET NX PX. The TTL bounds how
// long a crashed holder can block an instrument.
type RedisLocker struct {
	client  redis.UniversalClient
	timeout time.Duration
	ttl     time.Duration
	retry   time.Duration
	logger  *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, timeout, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:  client,
		timeout: timeout,
		ttl:     ttl,
		retry:   5 * time.Millisecond,
		logger:  logger.Named("redis_lock"),
	}
}

// Acquire polls SET NX until it wins, the timeout elapses or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()
	start := time.Now()
	deadline := start.Add(l.timeout)
	backoff := l.retry

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.ConcurrencyConflict.Explain("gave up waiting for lock on %s", key).Wrap(ctx.Err())
			}
			return nil, errors.StoreUnavailable.Explain("lock backend unavailable").Wrap(err)
		}
		if ok {
			break
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, errors.ConcurrencyConflict.Explain("timed out after %s waiting for lock on %s", l.timeout, key)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, errors.ConcurrencyConflict.Explain("gave up waiting for lock on %s", key).Wrap(ctx.Err())
		}
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
	metrics.LockWait.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
