package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/relay"
)

// submittedAck is the output recorded for relay handlers. The task's
// "completed" status covers the hand-off only; downstream progress lives in
// training_sessions.
var submittedAck = json.RawMessage(`{"status":"submitted"}`)

// TrainingSubmitHandler hands an RLHF training run to the training agents
// over the relay.
type TrainingSubmitHandler struct {
	relay *relay.Relay
}

// NewTrainingSubmitHandler creates the trainer/start_rlhf_training handler.
func NewTrainingSubmitHandler(r *relay.Relay) *TrainingSubmitHandler {
	return &TrainingSubmitHandler{relay: r}
}

func (h *TrainingSubmitHandler) AgentType() domain.AgentType { return domain.AgentTrainer }
func (h *TrainingSubmitHandler) TaskType() string            { return "start_rlhf_training" }

func (h *TrainingSubmitHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	ctx, span := otel.Tracer("handlers").Start(ctx, "handler.start_rlhf_training")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID))

	payload, err := json.Marshal(map[string]json.RawMessage{"config": orEmptyObject(task.InputData)})
	if err != nil {
		return nil, fmt.Errorf("marshal training config: %w", err)
	}

	env := relay.Envelope{TaskID: task.ID, Type: "rlhf_training", Payload: payload}
	if err := h.relay.Publish(ctx, relay.ChannelTraining, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay publish failed")
		return nil, err
	}
	return submittedAck, nil
}

// evalRequest is the expected shape of an evaluate_model input.
type evalRequest struct {
	ModelPath   string `json:"model_path"`
	EvalDataset string `json:"eval_dataset"`
}

// ModelEvalHandler hands a model evaluation run to the evaluation agents
// over the relay.
type ModelEvalHandler struct {
	relay *relay.Relay
}

// NewModelEvalHandler creates the trainer/evaluate_model handler.
func NewModelEvalHandler(r *relay.Relay) *ModelEvalHandler {
	return &ModelEvalHandler{relay: r}
}

func (h *ModelEvalHandler) AgentType() domain.AgentType { return domain.AgentTrainer }
func (h *ModelEvalHandler) TaskType() string            { return "evaluate_model" }

func (h *ModelEvalHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	ctx, span := otel.Tracer("handlers").Start(ctx, "handler.evaluate_model")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID))

	var req evalRequest
	if err := json.Unmarshal(orEmptyObject(task.InputData), &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		return nil, fmt.Errorf("invalid evaluate_model payload: %w", err)
	}
	if req.ModelPath == "" {
		err := errors.New("evaluate_model payload missing required field 'model_path'")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'model_path' field")
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation request: %w", err)
	}

	env := relay.Envelope{TaskID: task.ID, Type: "model_evaluation", Payload: payload}
	if err := h.relay.Publish(ctx, relay.ChannelEvaluation, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay publish failed")
		return nil, err
	}
	return submittedAck, nil
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
