package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message wraps a Kafka message with the fields consumers need.
type Message struct {
	Topic     string
	Partition int
	Key       []byte
	Value     []byte
	Offset    int64
	Headers   []kafka.Header
}

// HandlerFunc processes a single Kafka message. Return nil to commit the
// offset; return an error to skip committing so the message is re-delivered.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

// ConsumerOption adjusts the underlying reader configuration.
type ConsumerOption func(*kafka.ReaderConfig)

// WithMaxWait bounds how long a fetch blocks waiting for new messages.
func WithMaxWait(d time.Duration) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.MaxWait = d }
}

// WithStartOffset sets where a new consumer group begins reading.
func WithStartOffset(offset int64) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = offset }
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and consumer group.
// Offsets are committed manually, never on an interval.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger, opts ...ConsumerOption) Consumer {
	rc := kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10 MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return &consumer{reader: kafka.NewReader(rc), logger: logger}
}

// Subscribe reads messages in a loop until ctx is cancelled. Offsets are
// committed only after the handler returns nil (at-least-once delivery).
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // normal shutdown
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		c.deliver(ctx, m, handler)
	}
}

// deliver runs the handler for one fetched message and commits its offset on
// success.
func (c *consumer) deliver(ctx context.Context, m kafka.Message, handler HandlerFunc) {
	// Pick up any trace context the producer injected into the headers.
	carrier := HeaderCarrier(m.Headers)
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

	msg := Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Key:       m.Key,
		Value:     m.Value,
		Offset:    m.Offset,
		Headers:   m.Headers,
	}
	if err := handler(msgCtx, msg); err != nil {
		// Do not commit; the broker re-delivers on restart.
		c.logger.Error("message handler failed, skipping commit",
			slog.String("topic", m.Topic),
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("failed to commit kafka offset",
			slog.String("topic", m.Topic),
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
