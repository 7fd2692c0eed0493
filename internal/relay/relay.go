// Package relay implements the fire-and-forget hand-off of heavy work to
// out-of-process agents over Kafka. A successful publish means the broker
// acknowledged the message, nothing about downstream execution.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openchat-labs/agent-orchestrator/internal/kafka"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

// Channel names consumed by downstream agent classes.
const (
	ChannelTraining   = "training.requests"
	ChannelEvaluation = "evaluation.requests"
)

// DefaultPublishTimeout bounds how long a publish may block the dispatcher.
const DefaultPublishTimeout = 5 * time.Second

// Envelope is the wire frame every relayed message carries. Payload fields
// are flattened alongside task_id and type by the marshaller below.
type Envelope struct {
	TaskID  string          `json:"task_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"-"`
}

// Relay publishes envelopes to named channels with a bounded timeout.
type Relay struct {
	producer kafka.Producer
	timeout  time.Duration
}

// New creates a Relay over the given producer. timeout <= 0 uses
// DefaultPublishTimeout.
func New(producer kafka.Producer, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Relay{producer: producer, timeout: timeout}
}

// Publish sends env to channel, keyed by task id. It blocks at most the
// configured timeout regardless of the caller's context.
func (r *Relay) Publish(ctx context.Context, channel string, env Envelope) error {
	value, err := marshalEnvelope(env)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.producer.Publish(pubCtx, channel, env.TaskID, value); err != nil {
		return fmt.Errorf("relay publish to %s: %w", channel, err)
	}
	telemetry.RelayPublishesTotal.WithLabelValues(channel).Inc()
	return nil
}

// marshalEnvelope flattens the payload object into the envelope frame, so
// consumers see {"task_id": ..., "type": ..., <payload fields>}.
func marshalEnvelope(env Envelope) ([]byte, error) {
	frame := map[string]json.RawMessage{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &frame); err != nil {
			return nil, fmt.Errorf("relay payload must be a JSON object: %w", err)
		}
	}
	idRaw, _ := json.Marshal(env.TaskID)
	typeRaw, _ := json.Marshal(env.Type)
	frame["task_id"] = idRaw
	frame["type"] = typeRaw

	value, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal relay envelope: %w", err)
	}
	return value, nil
}
