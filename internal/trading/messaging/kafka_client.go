package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the client needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is one message to publish.
type Record struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// KafkaClient publishes matching events to one topic.
type KafkaClient struct {
	brokers []string
	topic   string
	writer  MessageWriter
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// KafkaClientConfig contains configuration options for KafkaClient
type KafkaClientConfig struct {
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	RequiredAcks    int
	Compression     string
	MaxMessageBytes int
	RetryMax        int
}

// DefaultKafkaClientConfig returns the producer settings used for trade events
func DefaultKafkaClientConfig() *KafkaClientConfig {
	return &KafkaClientConfig{
		BatchSize:       100,
		BatchTimeout:    10 * time.Millisecond,
		WriteTimeout:    time.Second,
		RequiredAcks:    int(kafka.RequireAll),
		Compression:     "snappy",
		MaxMessageBytes: 1048576,
		RetryMax:        3,
	}
}

// NewKafkaClient creates a new Kafka client with the specified configuration.
func NewKafkaClient(brokers []string, topic string, config *KafkaClientConfig, logger *zap.Logger) *KafkaClient {
	if config == nil {
		config = DefaultKafkaClientConfig()
	}

	// Keys are instrument ids; the hash balancer keeps one instrument's
	// events on one partition, in commit order.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  config.RetryMax,
		BatchBytes:   int64(config.MaxMessageBytes),
		Async:        false,
	}

	switch config.Compression {
	case "gzip":
		writer.Compression = kafka.Gzip
	case "lz4":
		writer.Compression = kafka.Lz4
	case "zstd":
		writer.Compression = kafka.Zstd
	default:
		writer.Compression = kafka.Snappy
	}

	client := NewKafkaClientWithWriter(writer, topic, logger)
	client.brokers = brokers
	return client
}

// NewKafkaClientWithWriter builds a client around an existing writer.
func NewKafkaClientWithWriter(w MessageWriter, topic string, logger *zap.Logger) *KafkaClient {
	return &KafkaClient{
		topic:  topic,
		writer: w,
		logger: logger.Named("kafka"),
	}
}

// Publish writes records in order as one batch.
func (c *KafkaClient) Publish(ctx context.Context, records ...Record) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("kafka client is closed")
	}
	writer := c.writer
	c.mu.RUnlock()

	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		headers := []kafka.Header{
			{Key: "source", Value: []byte("futures-engine")},
			{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339Nano))},
		}
		for k, v := range r.Headers {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		msgs[i] = kafka.Message{
			Key:     []byte(r.Key),
			Value:   r.Value,
			Headers: headers,
			Time:    now,
		}
	}

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		c.logger.Error("Failed to publish events to Kafka",
			zap.String("topic", c.topic),
			zap.Int("count", len(msgs)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to kafka topic %s: %w", c.topic, err)
	}

	c.logger.Debug("Published events",
		zap.String("topic", c.topic),
		zap.Int("count", len(msgs)),
	)
	return nil
}

// Close closes the Kafka client and releases resources.
func (c *KafkaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.writer.Close(); err != nil {
		c.logger.Error("Error closing Kafka writer", zap.Error(err))
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// Topic returns the topic this client publishes to
func (c *KafkaClient) Topic() string {
	return c.topic
}

// IsHealthy dials the first broker.
func (c *KafkaClient) IsHealthy(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("kafka client is closed")
	}
	if len(c.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", c.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	return conn.Close()
}
