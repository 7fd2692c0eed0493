//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/handlers"
	"github.com/openchat-labs/agent-orchestrator/internal/kafka"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
	"github.com/openchat-labs/agent-orchestrator/internal/relay"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
	"github.com/openchat-labs/agent-orchestrator/services/orchestrator"
	"github.com/openchat-labs/agent-orchestrator/services/trainagent"
)

// TestE2E_SubmitToCompletion drives a task through the whole pipeline:
// gateway-style submit, scheduler claim, dispatcher execution, terminal
// write, and the monitor's depth sample landing in Redis.
func TestE2E_SubmitToCompletion(t *testing.T) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE agent_tasks, training_sessions CASCADE") //nolint:errcheck
		pool.Close()
	})

	redisClient := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() {
		redisClient.FlushDB(ctx) //nolint:errcheck
		redisClient.Close()      //nolint:errcheck
	})

	store := postgres.NewTaskStore(pool)
	metrics := redisstore.NewMetricsStore(redisClient)

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewToxicityHandler())

	queues := queue.NewSet(100, 50)
	orch := orchestrator.New(orchestrator.Params{
		Store:    store,
		Metrics:  metrics,
		Queues:   queues,
		Registry: registry,
		Logger:   slog.Default(),
		SchedulerOpts: []orchestrator.SchedulerOption{
			orchestrator.WithPollInterval(100 * time.Millisecond),
		},
		MonitorOpts: []orchestrator.MonitorOption{
			orchestrator.WithSampleInterval(100 * time.Millisecond),
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		orch.Run(runCtx)
		close(done)
	}()

	task := &domain.AgentTask{
		ID:        uuid.New().String(),
		AgentType: domain.AgentEvaluator,
		TaskType:  "toxicity_check",
		InputData: json.RawMessage(`{"content":"this is toxic content","content_id":"c1"}`),
		Priority:  domain.DefaultPriority,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Submit(ctx, task))

	require.Eventually(t, func() bool {
		got, err := store.GetByID(ctx, task.ID)
		return err == nil && got.Status == domain.StatusCompleted
	}, 15*time.Second, 100*time.Millisecond, "task never completed")

	got, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	var result struct {
		IsToxic bool `json:"is_toxic"`
	}
	require.NoError(t, json.Unmarshal(got.OutputData, &result))
	assert.True(t, result.IsToxic)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	// The monitor has published depth samples by now.
	require.Eventually(t, func() bool {
		_, err := metrics.GetQueueDepth(ctx, domain.AgentEvaluator)
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("orchestrator did not shut down")
	}
}

// TestE2E_TrainingHandOff covers the relay path: a trainer task publishes to
// Kafka, the trainer agent consumes it and records a completed session,
// while the task itself resolves as soon as the broker acks.
func TestE2E_TrainingHandOff(t *testing.T) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE agent_tasks, training_sessions CASCADE") //nolint:errcheck
		pool.Close()
	})

	createTopic(t, relay.ChannelTraining)

	store := postgres.NewTaskStore(pool)
	sessions := postgres.NewSessionStore(pool)

	producer := kafka.NewProducer(testKafkaBrokers)
	t.Cleanup(func() { producer.Close() }) //nolint:errcheck
	rly := relay.New(producer, 10*time.Second)

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewTrainingSubmitHandler(rly))

	queues := queue.NewSet(100, 50)
	orch := orchestrator.New(orchestrator.Params{
		Store:    store,
		Queues:   queues,
		Registry: registry,
		Logger:   slog.Default(),
		SchedulerOpts: []orchestrator.SchedulerOption{
			orchestrator.WithPollInterval(100 * time.Millisecond),
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go orch.Run(runCtx)

	consumer := kafka.NewConsumer(testKafkaBrokers, relay.ChannelTraining, "e2e-"+uuid.New().String()[:8], slog.Default())
	t.Cleanup(func() { consumer.Close() }) //nolint:errcheck
	agent := trainagent.New(consumer, sessions, slog.Default(),
		trainagent.WithEpochs(1),
		trainagent.WithEpochDuration(10*time.Millisecond),
	)
	go agent.Run(runCtx) //nolint:errcheck

	task := &domain.AgentTask{
		ID:        uuid.New().String(),
		AgentType: domain.AgentTrainer,
		TaskType:  "start_rlhf_training",
		InputData: json.RawMessage(`{"base_model":"llama-7b","epochs":1}`),
		Priority:  9,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Submit(ctx, task))

	// The task completes on broker ack, independent of the training run.
	require.Eventually(t, func() bool {
		got, err := store.GetByID(ctx, task.ID)
		return err == nil && got.Status == domain.StatusCompleted
	}, 30*time.Second, 200*time.Millisecond, "hand-off never completed")

	got, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"submitted"}`, string(got.OutputData))

	// Downstream, the trainer agent opens and resolves a session.
	require.Eventually(t, func() bool {
		sess, err := sessions.GetByTaskID(ctx, task.ID)
		return err == nil && sess.Status == domain.StatusCompleted
	}, 60*time.Second, 500*time.Millisecond, "training session never completed")

	sess, err := sessions.GetByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "rlhf_training", sess.SessionType)
	assert.NotEmpty(t, sess.Metrics)
}
