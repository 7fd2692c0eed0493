package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// TaskStore is the durable task contract consumed by the orchestration core.
// All methods check out a connection from the pool per call, so the
// scheduler, every dispatcher, the monitor, and the gateway can use one
// store concurrently.
type TaskStore interface {
	// Submit inserts a new pending task.
	Submit(ctx context.Context, task *domain.AgentTask) error
	// FetchAndClaimPending atomically moves up to limit pending tasks to
	// running and returns them ordered by priority descending, creation
	// time ascending. Concurrent callers never receive the same task.
	FetchAndClaimPending(ctx context.Context, limit int) ([]*domain.AgentTask, error)
	// RecordTerminal transitions a running task to completed or failed.
	// Calls against a task that is not running are no-ops: a terminal
	// state is never overwritten.
	RecordTerminal(ctx context.Context, id string, status domain.Status, output json.RawMessage, errMsg string) error
	// ReleaseToPending undoes a claim for a task the scheduler could not
	// enqueue, clearing started_at so the next cycle can re-claim it.
	ReleaseToPending(ctx context.Context, id string) error
	// CountRunningOlderThan counts tasks running longer than age.
	CountRunningOlderThan(ctx context.Context, age time.Duration) (int, error)
	GetByID(ctx context.Context, id string) (*domain.AgentTask, error)
}

type taskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore wraps a pgxpool with the TaskStore interface.
func NewTaskStore(pool *pgxpool.Pool) TaskStore {
	return &taskStore{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *taskStore) Submit(ctx context.Context, task *domain.AgentTask) error {
	if !task.AgentType.Valid() {
		return &domain.UnknownAgentTypeError{AgentType: string(task.AgentType)}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_tasks
			(id, agent_type, task_type, input_data, priority, status, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
	`,
		task.ID, string(task.AgentType), task.TaskType, task.InputData,
		task.Priority, string(domain.StatusPending), task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("submit task %s: %w", task.ID, err)
	}
	return nil
}

// FetchAndClaimPending runs the claim as one statement: the CTE locks the
// qualifying rows with SKIP LOCKED so concurrent schedulers partition the
// backlog instead of double-claiming, the UPDATE promotes them to running,
// and the outer SELECT restores the claim ordering (UPDATE ... RETURNING
// does not preserve it).
func (s *taskStore) FetchAndClaimPending(ctx context.Context, limit int) ([]*domain.AgentTask, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimable AS (
			SELECT id
			FROM agent_tasks
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE agent_tasks t
			SET status = 'running', started_at = NOW()
			FROM claimable c
			WHERE t.id = c.id
			RETURNING t.id, t.agent_type, t.task_type, t.input_data, t.priority,
			          t.status, t.created_at, t.started_at, t.completed_at,
			          t.output_data, t.error_message
		)
		SELECT * FROM claimed
		ORDER BY priority DESC, created_at ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.AgentTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *taskStore) RecordTerminal(ctx context.Context, id string, status domain.Status, output json.RawMessage, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("record terminal for task %s: %q is not a terminal status", id, status)
	}
	var outputArg any
	if len(output) > 0 {
		outputArg = output
	}
	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}
	// The status guard makes this idempotent: once terminal, later calls
	// match zero rows.
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks
		SET status = $2, completed_at = NOW(), output_data = $3, error_message = $4
		WHERE id = $1 AND status = 'running'
	`, id, string(status), outputArg, errArg)
	if err != nil {
		return fmt.Errorf("record terminal for task %s: %w", id, err)
	}
	return nil
}

func (s *taskStore) ReleaseToPending(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks
		SET status = 'pending', started_at = NULL
		WHERE id = $1 AND status = 'running'
	`, id)
	if err != nil {
		return fmt.Errorf("release task %s to pending: %w", id, err)
	}
	return nil
}

func (s *taskStore) CountRunningOlderThan(ctx context.Context, age time.Duration) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM agent_tasks
		WHERE status = 'running' AND started_at < NOW() - $1::interval
	`, age).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count running older than %s: %w", age, err)
	}
	return n, nil
}

func (s *taskStore) GetByID(ctx context.Context, id string) (*domain.AgentTask, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_type, task_type, input_data, priority, status,
		       created_at, started_at, completed_at, output_data, error_message
		FROM agent_tasks
		WHERE id = $1
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, err
	}
	return task, nil
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.AgentTask, error) {
	var (
		task      domain.AgentTask
		agentType string
		status    string
		errMsg    *string
	)
	err := row.Scan(
		&task.ID, &agentType, &task.TaskType, &task.InputData, &task.Priority,
		&status, &task.CreatedAt, &task.StartedAt, &task.CompletedAt,
		&task.OutputData, &errMsg,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.AgentType = domain.AgentType(agentType)
	task.Status = domain.Status(status)
	if errMsg != nil {
		task.ErrorMessage = *errMsg
	}
	return &task, nil
}
