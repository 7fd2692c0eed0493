package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// ToxicityHandler flags toxic content with a keyword heuristic. A proper
// classifier would run out of process via the relay; this in-process check is
// intentionally cheap and bounded.
type ToxicityHandler struct {
	keywords []string
}

// NewToxicityHandler creates the evaluator/toxicity_check handler.
// With no keywords configured, a default list applies.
func NewToxicityHandler(keywords ...string) *ToxicityHandler {
	if len(keywords) == 0 {
		keywords = []string{"hate", "toxic", "offensive"}
	}
	return &ToxicityHandler{keywords: keywords}
}

func (h *ToxicityHandler) AgentType() domain.AgentType { return domain.AgentEvaluator }
func (h *ToxicityHandler) TaskType() string            { return "toxicity_check" }

type toxicityInput struct {
	Content   string `json:"content"`
	ContentID string `json:"content_id"`
}

type toxicityResult struct {
	IsToxic    bool    `json:"is_toxic"`
	Confidence float64 `json:"confidence"`
	ContentID  string  `json:"content_id"`
}

func (h *ToxicityHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	_, span := otel.Tracer("handlers").Start(ctx, "handler.toxicity_check")
	defer span.End()

	var in toxicityInput
	if err := json.Unmarshal(orEmptyObject(task.InputData), &in); err != nil {
		return nil, fmt.Errorf("invalid toxicity_check payload: %w", err)
	}

	lowered := strings.ToLower(in.Content)
	toxic := false
	for _, kw := range h.keywords {
		if strings.Contains(lowered, kw) {
			toxic = true
			break
		}
	}
	span.SetAttributes(attribute.Bool("toxicity.flagged", toxic))

	confidence := 0.05
	if toxic {
		confidence = 0.95
	}
	out, err := json.Marshal(toxicityResult{IsToxic: toxic, Confidence: confidence, ContentID: in.ContentID})
	if err != nil {
		return nil, fmt.Errorf("marshal toxicity result: %w", err)
	}
	return out, nil
}

// HallucinationHandler flags responses that outrun their context by a length
// ratio. Same caveat as ToxicityHandler: a heuristic stand-in for an
// out-of-process model.
type HallucinationHandler struct {
	ratio float64
}

// NewHallucinationHandler creates the evaluator/hallucination_detection
// handler. ratio <= 0 defaults to 2.
func NewHallucinationHandler(ratio float64) *HallucinationHandler {
	if ratio <= 0 {
		ratio = 2
	}
	return &HallucinationHandler{ratio: ratio}
}

func (h *HallucinationHandler) AgentType() domain.AgentType { return domain.AgentEvaluator }
func (h *HallucinationHandler) TaskType() string            { return "hallucination_detection" }

type hallucinationInput struct {
	Response   string `json:"response"`
	Context    string `json:"context"`
	ResponseID string `json:"response_id"`
}

type hallucinationResult struct {
	HasHallucination bool    `json:"has_hallucination"`
	Confidence       float64 `json:"confidence"`
	ResponseID       string  `json:"response_id"`
}

func (h *HallucinationHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	_, span := otel.Tracer("handlers").Start(ctx, "handler.hallucination_detection")
	defer span.End()

	var in hallucinationInput
	if err := json.Unmarshal(orEmptyObject(task.InputData), &in); err != nil {
		return nil, fmt.Errorf("invalid hallucination_detection payload: %w", err)
	}

	flagged := float64(len(in.Response)) > float64(len(in.Context))*h.ratio
	span.SetAttributes(attribute.Bool("hallucination.flagged", flagged))

	out, err := json.Marshal(hallucinationResult{
		HasHallucination: flagged,
		Confidence:       0.8,
		ResponseID:       in.ResponseID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal hallucination result: %w", err)
	}
	return out, nil
}
