//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchat-labs/agent-orchestrator/internal/kafka"
	"github.com/openchat-labs/agent-orchestrator/internal/relay"
)

func TestKafka_RelayRoundTrip(t *testing.T) {
	topic := "training.requests." + uuid.New().String()[:8]
	createTopic(t, topic)

	producer := kafka.NewProducer(testKafkaBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck
	rly := relay.New(producer, 10*time.Second)

	taskID := uuid.New().String()
	env := relay.Envelope{
		TaskID:  taskID,
		Type:    "rlhf_training",
		Payload: json.RawMessage(`{"config":{"base_model":"llama-7b","epochs":3}}`),
	}
	require.NoError(t, rly.Publish(context.Background(), topic, env))

	consumer := kafka.NewConsumer(testKafkaBrokers, topic, "it-"+uuid.New().String()[:8], slog.Default())
	t.Cleanup(func() { consumer.Close() }) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	received := make(chan kafka.Message, 1)
	go func() {
		_ = consumer.Subscribe(ctx, func(_ context.Context, msg kafka.Message) error {
			received <- msg
			cancel()
			return nil
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, taskID, string(msg.Key), "messages are keyed by task id")
		var frame map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(msg.Value, &frame))
		assert.JSONEq(t, `"rlhf_training"`, string(frame["type"]))
		assert.JSONEq(t, `{"base_model":"llama-7b","epochs":3}`, string(frame["config"]))
	case <-ctx.Done():
		t.Fatal("relayed message never arrived")
	}
}

func TestKafka_UncommittedMessageRedelivered(t *testing.T) {
	topic := "training.requests." + uuid.New().String()[:8]
	createTopic(t, topic)
	groupID := "it-" + uuid.New().String()[:8]

	producer := kafka.NewProducer(testKafkaBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck
	require.NoError(t, producer.Publish(context.Background(), topic, "k1", []byte(`{"task_id":"t1"}`)))

	// First consumer fails the handler, so the offset never commits.
	c1 := kafka.NewConsumer(testKafkaBrokers, topic, groupID, slog.Default())
	ctx1, cancel1 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel1()
	failed := make(chan struct{}, 1)
	go func() {
		_ = c1.Subscribe(ctx1, func(_ context.Context, _ kafka.Message) error {
			failed <- struct{}{}
			cancel1()
			return assert.AnError
		})
	}()
	select {
	case <-failed:
	case <-ctx1.Done():
		t.Fatal("first consumer never saw the message")
	}
	require.NoError(t, c1.Close())

	// A fresh consumer in the same group sees the message again.
	c2 := kafka.NewConsumer(testKafkaBrokers, topic, groupID, slog.Default())
	t.Cleanup(func() { c2.Close() }) //nolint:errcheck
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel2()
	redelivered := make(chan kafka.Message, 1)
	go func() {
		_ = c2.Subscribe(ctx2, func(_ context.Context, msg kafka.Message) error {
			redelivered <- msg
			cancel2()
			return nil
		})
	}()

	select {
	case msg := <-redelivered:
		assert.Equal(t, "k1", string(msg.Key))
	case <-ctx2.Done():
		t.Fatal("uncommitted message was not redelivered")
	}
}
