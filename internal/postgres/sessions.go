package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// SessionStore records the downstream training lifecycle. The orchestrator
// never writes here; only the trainer agent does.
type SessionStore interface {
	// CreateSession inserts a running session for a relayed task and
	// returns its id.
	CreateSession(ctx context.Context, taskID, sessionType string, config json.RawMessage) (string, error)
	// FinishSession resolves a session to completed or failed.
	FinishSession(ctx context.Context, sessionID string, status domain.Status, metrics json.RawMessage, errMsg string) error
	// GetByTaskID returns the most recent session for a task.
	GetByTaskID(ctx context.Context, taskID string) (*domain.TrainingSession, error)
}

type sessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore wraps a pgxpool with the SessionStore interface.
func NewSessionStore(pool *pgxpool.Pool) SessionStore {
	return &sessionStore{pool: pool}
}

func (s *sessionStore) CreateSession(ctx context.Context, taskID, sessionType string, config json.RawMessage) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO training_sessions
			(id, task_id, session_type, status, config, started_at)
		VALUES
			($1, $2, $3, $4, $5, NOW())
	`, id, taskID, sessionType, string(domain.StatusRunning), config)
	if err != nil {
		return "", fmt.Errorf("create session for task %s: %w", taskID, err)
	}
	return id, nil
}

func (s *sessionStore) FinishSession(ctx context.Context, sessionID string, status domain.Status, metrics json.RawMessage, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish session %s: %q is not a terminal status", sessionID, status)
	}
	var metricsArg any
	if len(metrics) > 0 {
		metricsArg = metrics
	}
	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE training_sessions
		SET status = $2, metrics = $3, error_message = $4, completed_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, sessionID, string(status), metricsArg, errArg)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", sessionID, err)
	}
	return nil
}

func (s *sessionStore) GetByTaskID(ctx context.Context, taskID string) (*domain.TrainingSession, error) {
	var (
		sess      domain.TrainingSession
		status    string
		errMsg    *string
		completed *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, task_id, session_type, status, config, metrics,
		       error_message, started_at, completed_at
		FROM training_sessions
		WHERE task_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, taskID).Scan(
		&sess.ID, &sess.TaskID, &sess.SessionType, &status, &sess.Config,
		&sess.Metrics, &errMsg, &sess.StartedAt, &completed,
	)
	if err != nil {
		return nil, fmt.Errorf("get session for task %s: %w", taskID, err)
	}
	sess.Status = domain.Status(status)
	if errMsg != nil {
		sess.ErrorMessage = *errMsg
	}
	sess.CompletedAt = completed
	return &sess, nil
}
