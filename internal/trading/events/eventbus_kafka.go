package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aidin1998/pincex_futures/internal/trading/messaging"
)

// KafkaEventBus forwards events to a Kafka topic keyed by instrument id.
type KafkaEventBus struct {
	client *messaging.KafkaClient
}

// NewKafkaEventBus wraps a Kafka client
func NewKafkaEventBus(client *messaging.KafkaClient) *KafkaEventBus {
	return &KafkaEventBus{client: client}
}

// Publish writes the events as one ordered batch
func (bus *KafkaEventBus) Publish(ctx context.Context, events ...Event) error {
	records := make([]messaging.Record, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
		}
		records = append(records, messaging.Record{
			Key:   e.InstrumentID,
			Value: data,
			Headers: map[string]string{
				"event-topic": e.Topic,
				"event-type":  e.Type,
			},
		})
	}
	return bus.client.Publish(ctx, records...)
}

// Close closes the underlying client
func (bus *KafkaEventBus) Close() error {
	return bus.client.Close()
}
