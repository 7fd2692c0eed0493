package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultErrorInterval = 10 * time.Second
	defaultClaimLimit    = 50
	defaultEnqueueWait   = 2 * time.Second
)

// Scheduler claims pending tasks from the store every poll interval and
// routes them to the per-agent-type queues. The claim query's ordering
// (priority descending, creation time ascending) is the sole source of
// dispatch ordering; nothing downstream re-sorts.
type Scheduler struct {
	store        postgres.TaskStore
	jobs         postgres.JobStore // nil disables recurring jobs
	queues       queue.Set
	pollInterval time.Duration
	errInterval  time.Duration
	claimLimit   int
	enqueueWait  time.Duration
	logger       *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

func WithErrorInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.errInterval = d }
}

func WithClaimLimit(n int) SchedulerOption {
	return func(s *Scheduler) { s.claimLimit = n }
}

func WithEnqueueWait(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.enqueueWait = d }
}

func WithJobStore(jobs postgres.JobStore) SchedulerOption {
	return func(s *Scheduler) { s.jobs = jobs }
}

// NewScheduler constructs a Scheduler over the given store and queues.
func NewScheduler(store postgres.TaskStore, queues queue.Set, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:        store,
		queues:       queues,
		pollInterval: defaultPollInterval,
		errInterval:  defaultErrorInterval,
		claimLimit:   defaultClaimLimit,
		enqueueWait:  defaultEnqueueWait,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is the polling loop. Blocks until ctx is cancelled. A transient store
// error stretches the interval to the error backoff; the next clean cycle
// restores it.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// One cycle immediately so a fresh start does not wait a full interval.
	s.applyInterval(ticker, s.Tick(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.applyInterval(ticker, s.Tick(ctx))
		}
	}
}

func (s *Scheduler) applyInterval(ticker *time.Ticker, err error) {
	if err != nil {
		ticker.Reset(s.errInterval)
		return
	}
	ticker.Reset(s.pollInterval)
}

// Tick runs one scheduling cycle: fire due recurring jobs, then claim and
// route a batch of pending tasks. The returned error covers only transient
// store failures on the claim path.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.jobs != nil {
		s.fireDueJobs(ctx)
	}

	tasks, err := s.store.FetchAndClaimPending(ctx, s.claimLimit)
	if err != nil {
		telemetry.SchedulerClaimErrors.Inc()
		s.logger.Error("claim cycle failed, backing off", slog.String("error", err.Error()))
		return err
	}

	for _, task := range tasks {
		s.route(ctx, task)
	}
	return nil
}

// route hands one claimed task to its queue. If the queue stays full past
// the enqueue wait, or the row carries an agent type with no queue, the
// claim is released so the task is not stranded in running with no owner.
func (s *Scheduler) route(ctx context.Context, task *domain.AgentTask) {
	q, ok := s.queues[task.AgentType]
	if !ok {
		s.logger.Error("no queue for agent type, releasing claim",
			slog.String("task_id", task.ID),
			slog.String("agent_type", string(task.AgentType)),
		)
		s.release(ctx, task)
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.enqueueWait)
	err := q.Push(pushCtx, task)
	cancel()
	if err != nil {
		s.logger.Warn("queue full, releasing claim",
			slog.String("task_id", task.ID),
			slog.String("agent_type", string(task.AgentType)),
			slog.Int("depth", q.Depth()),
		)
		s.release(ctx, task)
		return
	}
	telemetry.SchedulerTasksClaimed.WithLabelValues(string(task.AgentType)).Inc()
}

func (s *Scheduler) release(ctx context.Context, task *domain.AgentTask) {
	telemetry.SchedulerTasksReleased.WithLabelValues(string(task.AgentType)).Inc()
	if err := s.store.ReleaseToPending(ctx, task.ID); err != nil {
		// The monitor's stuck-task warning is the fallback here.
		s.logger.Error("failed to release claim",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// fireDueJobs materializes due recurring jobs into pending tasks. Job
// failures are logged per job and never abort the cycle.
func (s *Scheduler) fireDueJobs(ctx context.Context) {
	jobs, err := s.jobs.DueJobs(ctx)
	if err != nil {
		s.logger.Error("load due jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range jobs {
		if err := s.fireJob(ctx, job); err != nil {
			s.logger.Error("fire job failed",
				slog.String("job", job.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) fireJob(ctx context.Context, job domain.ScheduledJob) error {
	schedule, err := cron.ParseStandard(job.CronExpr)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task := &domain.AgentTask{
		ID:        uuid.New().String(),
		AgentType: job.AgentType,
		TaskType:  job.TaskType,
		InputData: job.InputData,
		Priority:  domain.DefaultPriority,
		Status:    domain.StatusPending,
		CreatedAt: now,
	}
	if err := s.store.Submit(ctx, task); err != nil {
		return err
	}
	if err := s.jobs.MarkRun(ctx, job.ID, now, schedule.Next(now)); err != nil {
		return err
	}

	telemetry.SchedulerJobsFired.WithLabelValues(job.Name).Inc()
	s.logger.Info("recurring job fired",
		slog.String("job", job.Name),
		slog.String("task_id", task.ID),
		slog.String("task_type", job.TaskType),
	)
	return nil
}
