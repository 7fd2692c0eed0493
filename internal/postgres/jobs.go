package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// JobStore loads and bookkeeps recurring job templates.
type JobStore interface {
	// DueJobs returns enabled jobs whose next_run_at is unset or in the past.
	DueJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	// MarkRun records a firing and the computed next run time.
	MarkRun(ctx context.Context, jobID string, lastRun, nextRun time.Time) error
}

type jobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore wraps a pgxpool with the JobStore interface.
func NewJobStore(pool *pgxpool.Pool) JobStore {
	return &jobStore{pool: pool}
}

func (s *jobStore) DueJobs(ctx context.Context) ([]domain.ScheduledJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, cron_expr, agent_type, task_type, input_data,
		       enabled, last_run_at, next_run_at
		FROM scheduled_jobs
		WHERE enabled = TRUE AND (next_run_at IS NULL OR next_run_at <= NOW())
		ORDER BY next_run_at ASC NULLS FIRST
	`)
	if err != nil {
		return nil, fmt.Errorf("query scheduled_jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		var (
			j         domain.ScheduledJob
			agentType string
		)
		if err := rows.Scan(
			&j.ID, &j.Name, &j.CronExpr, &agentType, &j.TaskType,
			&j.InputData, &j.Enabled, &j.LastRunAt, &j.NextRunAt,
		); err != nil {
			return nil, fmt.Errorf("scan scheduled_job: %w", err)
		}
		j.AgentType = domain.AgentType(agentType)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *jobStore) MarkRun(ctx context.Context, jobID string, lastRun, nextRun time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_jobs
		SET last_run_at = $2, next_run_at = $3
		WHERE id = $1
	`, jobID, lastRun, nextRun)
	if err != nil {
		return fmt.Errorf("mark run for job %s: %w", jobID, err)
	}
	return nil
}
