package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/handlers"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
	"github.com/openchat-labs/agent-orchestrator/pkg/backoff"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

const (
	defaultHandlerTimeout = 60 * time.Second
	defaultConcurrency    = 1
)

// Dispatcher consumes one agent type's queue, resolves handlers through the
// registry, and records terminal status. A handler failure or panic is
// isolated to its task; the loop always moves on to the next one.
type Dispatcher struct {
	agentType   domain.AgentType
	q           *queue.Queue
	store       postgres.TaskStore
	registry    *handlers.Registry
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithHandlerTimeout(d time.Duration) DispatcherOption {
	return func(d2 *Dispatcher) { d2.timeout = d }
}

func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) { d.concurrency = n }
}

// NewDispatcher constructs a Dispatcher for one agent type's queue.
func NewDispatcher(
	q *queue.Queue,
	store postgres.TaskStore,
	registry *handlers.Registry,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		agentType:   q.AgentType(),
		q:           q,
		store:       store,
		registry:    registry,
		timeout:     defaultHandlerTimeout,
		concurrency: defaultConcurrency,
		logger:      logger.With(slog.String("agent_type", string(q.AgentType()))),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the configured number of consumer loops and blocks until ctx is
// cancelled and in-flight tasks have finished.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.loop(ctx)
		}()
	}
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		task, ok := d.q.Pop(ctx)
		if !ok {
			return
		}
		d.process(ctx, task)
	}
}

// process executes one task end to end and records its terminal status.
func (d *Dispatcher) process(ctx context.Context, task *domain.AgentTask) {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatcher.process_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.agent_type", string(task.AgentType)),
		attribute.String("task.type", task.TaskType),
	)

	log := d.logger.With(
		slog.String("task_id", task.ID),
		slog.String("task_type", task.TaskType),
	)

	h, err := d.registry.Resolve(task.AgentType, task.TaskType)
	if err != nil {
		// No handler means the task can never make progress. Fail it
		// now instead of leaving it running forever.
		log.Error("no handler registered, failing task", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported task type")
		d.recordTerminal(ctx, log, task, domain.StatusFailed, nil, err.Error())
		return
	}

	telemetry.DispatcherTasksInFlight.WithLabelValues(string(d.agentType)).Inc()
	start := time.Now()
	output, execErr := d.invoke(ctx, span, h, task)
	duration := time.Since(start)
	telemetry.DispatcherTasksInFlight.WithLabelValues(string(d.agentType)).Dec()
	telemetry.DispatcherTaskDurationSeconds.WithLabelValues(string(d.agentType)).Observe(duration.Seconds())

	if execErr != nil {
		log.Error("task failed",
			slog.String("error", execErr.Error()),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "handler failed")
		d.recordTerminal(ctx, log, task, domain.StatusFailed, nil, execErr.Error())
		return
	}

	log.Info("task completed", slog.Int64("duration_ms", duration.Milliseconds()))
	d.recordTerminal(ctx, log, task, domain.StatusCompleted, output, "")
}

// invoke runs the handler with a per-task timeout and converts panics into
// errors so a misbehaving handler cannot take the loop down. The handler
// gets a fresh context carrying only the span: its timeout must not be cut
// short by dispatcher shutdown, since in-flight work is allowed to finish.
func (d *Dispatcher) invoke(ctx context.Context, span trace.Span, h handlers.Handler, task *domain.AgentTask) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	execCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), span), d.timeout)
	defer cancel()
	return h.Handle(execCtx, task)
}

// recordTerminal writes the terminal transition, retrying transient store
// errors. A dropped terminal write would strand the task in running, so this
// is the one store write worth fighting for.
func (d *Dispatcher) recordTerminal(ctx context.Context, log *slog.Logger, task *domain.AgentTask, status domain.Status, output json.RawMessage, errMsg string) {
	// Detached from ctx so a shutdown does not lose a finished task's result.
	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := backoff.Do(writeCtx, backoff.Config{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		OnRetry: func(attempt int, retryErr error) {
			log.Warn("terminal write failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		return d.store.RecordTerminal(writeCtx, task.ID, status, output, errMsg)
	})
	if err != nil {
		log.Error("giving up on terminal write, task left running",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.DispatcherTasksProcessed.WithLabelValues(string(d.agentType), string(status)).Inc()
}
