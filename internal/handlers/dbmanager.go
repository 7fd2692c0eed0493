package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
)

// ArchiveConversationsHandler flags old conversations as archived.
type ArchiveConversationsHandler struct {
	reports postgres.ReportStore
}

// NewArchiveConversationsHandler creates the
// db_manager/cleanup_old_conversations handler.
func NewArchiveConversationsHandler(reports postgres.ReportStore) *ArchiveConversationsHandler {
	return &ArchiveConversationsHandler{reports: reports}
}

func (h *ArchiveConversationsHandler) AgentType() domain.AgentType { return domain.AgentDBManager }
func (h *ArchiveConversationsHandler) TaskType() string            { return "cleanup_old_conversations" }

type cleanupInput struct {
	DaysOld int `json:"days_old"`
}

func (h *ArchiveConversationsHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	ctx, span := otel.Tracer("handlers").Start(ctx, "handler.cleanup_old_conversations")
	defer span.End()

	in := cleanupInput{DaysOld: 30}
	if err := json.Unmarshal(orEmptyObject(task.InputData), &in); err != nil {
		return nil, fmt.Errorf("invalid cleanup_old_conversations payload: %w", err)
	}
	if in.DaysOld <= 0 {
		in.DaysOld = 30
	}

	archived, err := h.reports.ArchiveConversationsOlderThan(ctx, in.DaysOld)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("cleanup.archived", archived))

	out, err := json.Marshal(map[string]int64{"archived_conversations": archived})
	if err != nil {
		return nil, fmt.Errorf("marshal cleanup result: %w", err)
	}
	return out, nil
}

// FeedbackBackupHandler exports the last week of feedback to a JSON file.
type FeedbackBackupHandler struct {
	reports postgres.ReportStore
	window  time.Duration
}

// NewFeedbackBackupHandler creates the db_manager/backup_feedback_data
// handler. The export window is fixed at seven days.
func NewFeedbackBackupHandler(reports postgres.ReportStore) *FeedbackBackupHandler {
	return &FeedbackBackupHandler{reports: reports, window: 7 * 24 * time.Hour}
}

func (h *FeedbackBackupHandler) AgentType() domain.AgentType { return domain.AgentDBManager }
func (h *FeedbackBackupHandler) TaskType() string            { return "backup_feedback_data" }

type backupInput struct {
	BackupPath string `json:"backup_path"`
}

func (h *FeedbackBackupHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	ctx, span := otel.Tracer("handlers").Start(ctx, "handler.backup_feedback_data")
	defer span.End()

	in := backupInput{BackupPath: filepath.Join(os.TempDir(), "feedback_backup.json")}
	if err := json.Unmarshal(orEmptyObject(task.InputData), &in); err != nil {
		return nil, fmt.Errorf("invalid backup_feedback_data payload: %w", err)
	}

	records, err := h.reports.RecentFeedback(ctx, h.window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feedback query failed")
		return nil, err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feedback export: %w", err)
	}
	if err := os.WriteFile(in.BackupPath, data, 0o644); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write backup file failed")
		return nil, fmt.Errorf("write backup to %s: %w", in.BackupPath, err)
	}
	span.SetAttributes(
		attribute.String("backup.path", in.BackupPath),
		attribute.Int("backup.records", len(records)),
	)

	out, err := json.Marshal(map[string]any{
		"backup_path":   in.BackupPath,
		"records_count": len(records),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal backup result: %w", err)
	}
	return out, nil
}
