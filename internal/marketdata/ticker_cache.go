package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/events"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	tickerKeyPrefix = "futures:ticker:"
	// TickerChannel is the redis pub/sub channel carrying ticker updates
	TickerChannel = "futures:ticker"
)

// Ticker is the latest market statistics of one instrument
type Ticker struct {
	InstrumentID string    `json:"instrument_id"`
	LastPrice    string    `json:"last_price"`
	Volume       string    `json:"volume"`
	OpenInterest string    `json:"open_interest"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TickerCache keeps the latest ticker per instrument in redis hashes and
// announces every change on TickerChannel.
type TickerCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

var _ events.Publisher = (*TickerCache)(nil)

// NewTickerCache creates a ticker cache; ttl <= 0 keeps entries forever.
func NewTickerCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *TickerCache {
	return &TickerCache{client: client, ttl: ttl, logger: logger.Named("ticker_cache")}
}

// Publish stores instrument updates; other topics are ignored.
func (c *TickerCache) Publish(ctx context.Context, evts ...events.Event) error {
	for _, e := range evts {
		if e.Topic != events.TopicInstrument {
			continue
		}
		payload, ok := e.Payload.(events.InstrumentEvent)
		if !ok {
			continue
		}
		t := Ticker{
			InstrumentID: payload.InstrumentID,
			LastPrice:    payload.LastPrice,
			Volume:       payload.Volume,
			OpenInterest: payload.OpenInterest,
			UpdatedAt:    payload.Timestamp,
		}
		if err := c.store(ctx, t); err != nil {
			c.logger.Error("Failed to update ticker", zap.String("instrument_id", t.InstrumentID), zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *TickerCache) store(ctx context.Context, t Ticker) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	key := tickerKeyPrefix + t.InstrumentID
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"last_price":    t.LastPrice,
			"volume":        t.Volume,
			"open_interest": t.OpenInterest,
			"updated_at":    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		pipe.Publish(ctx, TickerChannel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store ticker %s: %w", t.InstrumentID, err)
	}
	return nil
}

// Get returns the cached ticker of an instrument
func (c *TickerCache) Get(ctx context.Context, instrumentID string) (*Ticker, error) {
	vals, err := c.client.HGetAll(ctx, tickerKeyPrefix+instrumentID).Result()
	if err != nil {
		return nil, errors.StoreUnavailable.Explain("ticker cache unavailable").Wrap(err)
	}
	if len(vals) == 0 {
		return nil, errors.NotFound.Explain("no ticker for %s", instrumentID)
	}
	t := &Ticker{
		InstrumentID: instrumentID,
		LastPrice:    vals["last_price"],
		Volume:       vals["volume"],
		OpenInterest: vals["open_interest"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["updated_at"]); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

// Subscribe streams ticker updates until ctx is done.
func (c *TickerCache) Subscribe(ctx context.Context, handler func(Ticker)) error {
	pubsub := c.client.Subscribe(ctx, TickerChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", TickerChannel, err)
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var t Ticker
				if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
					c.logger.Warn("Malformed ticker message", zap.Error(err))
					continue
				}
				handler(t)
			}
		}
	}()
	return nil
}
