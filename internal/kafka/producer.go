package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer publishes messages to Kafka topics. The relay is its only
// in-tree consumer; it keys every message by task id.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// ProducerOption customizes the underlying writer.
type ProducerOption func(*kafka.Writer)

// WithMaxAttempts sets how many times a write is retried inside the client.
func WithMaxAttempts(n int) ProducerOption {
	return func(w *kafka.Writer) { w.MaxAttempts = n }
}

// WithRequiredAcks overrides the acknowledgement level. The default is
// RequireOne: leader ack, which is the "broker accepted the hand-off"
// contract the relay exposes.
func WithRequiredAcks(acks kafka.RequiredAcks) ProducerOption {
	return func(w *kafka.Writer) { w.RequiredAcks = acks }
}

// NewProducer creates a producer over the given brokers. The Hash balancer
// keeps every message for one task on one partition, so downstream agents
// see a task's messages in order.
func NewProducer(brokers []string, opts ...ProducerOption) Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return &producer{writer: w}
}

func (p *producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	// Trace context rides the message headers so downstream agents can
	// continue the span started at submission.
	headers := make(HeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
