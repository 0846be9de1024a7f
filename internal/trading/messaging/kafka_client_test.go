package messaging

import (
	"context"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaClientPublish(t *testing.T) {
	w := &fakeWriter{}
	c := NewKafkaClientWithWriter(w, "futures.events", zap.NewNop())

	err := c.Publish(context.Background(),
		Record{Key: "CL-20251219", Value: []byte(`{"a":1}`), Headers: map[string]string{"event-type": "TRADE_EXECUTED"}},
		Record{Key: "CL-20251219", Value: []byte(`{"a":2}`)},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "CL-20251219", string(w.msgs[0].Key))

	var eventType string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "event-type" {
			eventType = string(h.Value)
		}
	}
	assert.Equal(t, "TRADE_EXECUTED", eventType)
	assert.NoError(t, c.Publish(context.Background()))
}

func TestKafkaClientErrorsAndClose(t *testing.T) {
	w := &fakeWriter{err: fmt.Errorf("broker down")}
	c := NewKafkaClientWithWriter(w, "futures.events", zap.NewNop())
	assert.Error(t, c.Publish(context.Background(), Record{Key: "k"}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, w.closed)
	assert.Error(t, c.Publish(context.Background(), Record{Key: "k"}))
	assert.Error(t, c.IsHealthy(context.Background()))
}
