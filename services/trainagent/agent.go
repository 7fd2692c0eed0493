// Package trainagent implements the out-of-process trainer that consumes
// relayed training requests from Kafka and records session lifecycle in
// training_sessions. It is the downstream side of the fire-and-forget
// hand-off: the orchestrator's job ended when the broker acked the message.
package trainagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/kafka"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

const (
	defaultEpochs        = 3
	defaultEpochDuration = 2 * time.Second
)

// trainingRequest is the wire shape published on training.requests.
type trainingRequest struct {
	TaskID string          `json:"task_id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// sessionMetrics is recorded on training_sessions when a run completes.
type sessionMetrics struct {
	Epochs     int     `json:"epochs"`
	FinalLoss  float64 `json:"final_loss"`
	RewardMean float64 `json:"reward_mean"`
	DurationMS int64   `json:"duration_ms"`
}

// Agent consumes training requests and drives each one through a session.
type Agent struct {
	consumer kafka.Consumer
	sessions postgres.SessionStore
	logger   *slog.Logger

	epochs        int
	epochDuration time.Duration
}

// Option customizes an Agent.
type Option func(*Agent)

// WithEpochs sets how many epochs each run executes.
func WithEpochs(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.epochs = n
		}
	}
}

// WithEpochDuration sets the wall-clock length of one epoch.
func WithEpochDuration(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.epochDuration = d
		}
	}
}

// New creates a trainer agent over the given consumer and session store.
func New(consumer kafka.Consumer, sessions postgres.SessionStore, logger *slog.Logger, opts ...Option) *Agent {
	a := &Agent{
		consumer:      consumer,
		sessions:      sessions,
		logger:        logger,
		epochs:        defaultEpochs,
		epochDuration: defaultEpochDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run consumes until ctx is cancelled. Requests are processed one at a time;
// offsets commit only after the session reaches a terminal status, so a crash
// mid-run re-delivers the request on restart.
func (a *Agent) Run(ctx context.Context) error {
	return a.consumer.Subscribe(ctx, a.handle)
}

func (a *Agent) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("trainagent").Start(ctx, "trainagent.handle")
	defer span.End()

	var req trainingRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.TaskID == "" {
		// Malformed frames commit anyway; redelivering them never helps.
		a.logger.Warn("dropping malformed training request",
			slog.Int64("offset", msg.Offset),
			slog.Any("error", err),
		)
		return nil
	}
	span.SetAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("session.type", req.Type),
	)

	sessionID, err := a.sessions.CreateSession(ctx, req.TaskID, req.Type, req.Config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return fmt.Errorf("create session: %w", err)
	}
	a.logger.Info("training session started",
		slog.String("session_id", sessionID),
		slog.String("task_id", req.TaskID),
		slog.String("session_type", req.Type),
	)

	start := time.Now()
	metrics, runErr := a.runSession(ctx, sessionID)
	elapsed := time.Since(start)
	telemetry.TrainerSessionDurationSeconds.Observe(elapsed.Seconds())

	if runErr != nil {
		if ctx.Err() != nil {
			// Shut down without finishing; the uncommitted offset brings
			// the request back after restart.
			return ctx.Err()
		}
		telemetry.TrainerSessionsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "session failed")
		if err := a.sessions.FinishSession(ctx, sessionID, domain.StatusFailed, nil, runErr.Error()); err != nil {
			return fmt.Errorf("finish session %s: %w", sessionID, err)
		}
		a.logger.Error("training session failed",
			slog.String("session_id", sessionID),
			slog.String("error", runErr.Error()),
		)
		return nil
	}

	metrics.DurationMS = elapsed.Milliseconds()
	out, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal session metrics: %w", err)
	}
	if err := a.sessions.FinishSession(ctx, sessionID, domain.StatusCompleted, out, ""); err != nil {
		return fmt.Errorf("finish session %s: %w", sessionID, err)
	}
	telemetry.TrainerSessionsTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	a.logger.Info("training session completed",
		slog.String("session_id", sessionID),
		slog.Duration("duration", elapsed),
		slog.Int("epochs", metrics.Epochs),
	)
	return nil
}

// runSession executes the training loop. The real trainer shells out to the
// RLHF pipeline here; this build simulates epoch timing and loss curves so
// the session plumbing can be exercised end to end.
func (a *Agent) runSession(ctx context.Context, sessionID string) (sessionMetrics, error) {
	loss := 1.0 + rand.Float64()
	for epoch := 1; epoch <= a.epochs; epoch++ {
		select {
		case <-ctx.Done():
			return sessionMetrics{}, ctx.Err()
		case <-time.After(a.epochDuration):
		}
		loss *= 0.6 + rand.Float64()*0.2
		a.logger.Debug("epoch finished",
			slog.String("session_id", sessionID),
			slog.Int("epoch", epoch),
			slog.Float64("loss", loss),
		)
	}
	return sessionMetrics{
		Epochs:     a.epochs,
		FinalLoss:  loss,
		RewardMean: 1 - loss,
	}, nil
}
