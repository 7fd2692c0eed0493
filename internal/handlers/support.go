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
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
)

// FeedbackAnalysisHandler aggregates a user's feedback by type.
type FeedbackAnalysisHandler struct {
	reports postgres.ReportStore
}

// NewFeedbackAnalysisHandler creates the support/analyze_user_feedback
// handler.
func NewFeedbackAnalysisHandler(reports postgres.ReportStore) *FeedbackAnalysisHandler {
	return &FeedbackAnalysisHandler{reports: reports}
}

func (h *FeedbackAnalysisHandler) AgentType() domain.AgentType { return domain.AgentSupport }
func (h *FeedbackAnalysisHandler) TaskType() string            { return "analyze_user_feedback" }

type feedbackAnalysisInput struct {
	UserID string `json:"user_id"`
}

type feedbackAnalysisResult struct {
	UserID          string                  `json:"user_id"`
	FeedbackSummary []postgres.FeedbackStat `json:"feedback_summary"`
}

func (h *FeedbackAnalysisHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	ctx, span := otel.Tracer("handlers").Start(ctx, "handler.analyze_user_feedback")
	defer span.End()

	var in feedbackAnalysisInput
	if err := json.Unmarshal(orEmptyObject(task.InputData), &in); err != nil {
		return nil, fmt.Errorf("invalid analyze_user_feedback payload: %w", err)
	}
	if in.UserID == "" {
		err := errors.New("analyze_user_feedback payload missing required field 'user_id'")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'user_id' field")
		return nil, err
	}
	span.SetAttributes(attribute.String("feedback.user_id", in.UserID))

	stats, err := h.reports.UserFeedbackStats(ctx, in.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feedback stats query failed")
		return nil, err
	}
	if stats == nil {
		stats = []postgres.FeedbackStat{}
	}

	out, err := json.Marshal(feedbackAnalysisResult{UserID: in.UserID, FeedbackSummary: stats})
	if err != nil {
		return nil, fmt.Errorf("marshal feedback analysis: %w", err)
	}
	return out, nil
}
