package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
)

func fillQueue(t *testing.T, q *queue.Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(context.Background(), &domain.AgentTask{
			ID:        fmt.Sprintf("%s-%d", q.AgentType(), i),
			AgentType: q.AgentType(),
			TaskType:  "toxicity_check",
			Status:    domain.StatusRunning,
		}))
	}
}

func TestMonitorSampleReportsDepths(t *testing.T) {
	store := newFakeTaskStore()
	metrics := newFakeMetricsStore()
	queues := queue.NewSet(200, 100)
	fillQueue(t, queues[domain.AgentTrainer], 3)
	fillQueue(t, queues[domain.AgentSupport], 7)

	m := NewMonitor(queues, store, metrics, slog.Default())
	report := m.Sample(context.Background())

	assert.Equal(t, 3, report.Depths[domain.AgentTrainer])
	assert.Equal(t, 7, report.Depths[domain.AgentSupport])
	assert.Equal(t, 0, report.Depths[domain.AgentEvaluator])
	assert.Empty(t, report.Overloaded)

	// Depths landed in the shared metrics store for the gateway to read.
	assert.Equal(t, 3, metrics.depths[domain.AgentTrainer])
	assert.Equal(t, 7, metrics.depths[domain.AgentSupport])
	assert.Equal(t, 0, metrics.depths[domain.AgentEvaluator])
}

func TestMonitorFlagsOverloadAboveThreshold(t *testing.T) {
	store := newFakeTaskStore()
	queues := queue.NewSet(200, 5)
	fillQueue(t, queues[domain.AgentEvaluator], 6) // above
	fillQueue(t, queues[domain.AgentTrainer], 5)   // exactly at threshold: not overloaded

	m := NewMonitor(queues, store, newFakeMetricsStore(), slog.Default(), WithDepthThreshold(5))
	report := m.Sample(context.Background())

	assert.Equal(t, []domain.AgentType{domain.AgentEvaluator}, report.Overloaded)
}

func TestMonitorCountsStuckTasks(t *testing.T) {
	store := newFakeTaskStore()
	stale := time.Now().UTC().Add(-2 * time.Hour)
	fresh := time.Now().UTC()
	store.tasks["old"] = &domain.AgentTask{
		ID: "old", AgentType: domain.AgentTrainer, Status: domain.StatusRunning, StartedAt: &stale,
	}
	store.tasks["new"] = &domain.AgentTask{
		ID: "new", AgentType: domain.AgentTrainer, Status: domain.StatusRunning, StartedAt: &fresh,
	}
	store.tasks["done"] = &domain.AgentTask{
		ID: "done", AgentType: domain.AgentTrainer, Status: domain.StatusCompleted, StartedAt: &stale,
	}

	m := NewMonitor(queue.NewSet(10, 5), store, newFakeMetricsStore(), slog.Default(),
		WithStuckAfter(time.Hour))
	report := m.Sample(context.Background())

	assert.Equal(t, 1, report.StuckTasks, "only running tasks past the threshold count")
}

func TestMonitorNeverMutatesTasks(t *testing.T) {
	store := newFakeTaskStore()
	stale := time.Now().UTC().Add(-3 * time.Hour)
	store.tasks["stuck"] = &domain.AgentTask{
		ID: "stuck", AgentType: domain.AgentTrainer, Status: domain.StatusRunning, StartedAt: &stale,
	}

	m := NewMonitor(queue.NewSet(10, 5), store, newFakeMetricsStore(), slog.Default())
	m.Sample(context.Background())

	assert.Equal(t, domain.StatusRunning, store.status("stuck"),
		"the monitor observes; it does not requeue or fail tasks")
	assert.Empty(t, store.released)
}

func TestMonitorSurvivesMetricsSinkFailure(t *testing.T) {
	store := newFakeTaskStore()
	metrics := newFakeMetricsStore()
	metrics.err = assert.AnError
	queues := queue.NewSet(10, 5)
	fillQueue(t, queues[domain.AgentTrainer], 2)

	m := NewMonitor(queues, store, metrics, slog.Default())
	report := m.Sample(context.Background())

	assert.Equal(t, 2, report.Depths[domain.AgentTrainer],
		"a Redis failure degrades to a log line, sampling continues")
}

func TestMonitorNilMetricsStore(t *testing.T) {
	store := newFakeTaskStore()
	queues := queue.NewSet(10, 5)
	fillQueue(t, queues[domain.AgentDBManager], 1)

	m := NewMonitor(queues, store, nil, slog.Default())
	report := m.Sample(context.Background())
	assert.Equal(t, 1, report.Depths[domain.AgentDBManager])
}
