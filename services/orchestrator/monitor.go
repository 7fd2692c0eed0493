package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

const (
	defaultSampleInterval = 60 * time.Second
	defaultDepthThreshold = 100
	defaultStuckAfter     = time.Hour
)

// Monitor periodically samples queue depths and running-task ages. It only
// observes: depths go to Redis (with TTL) and prometheus, overload and stuck
// conditions are logged as warnings. It never mutates task state.
type Monitor struct {
	queues         queue.Set
	store          postgres.TaskStore
	metrics        redisstore.MetricsStore // nil disables the Redis sink
	interval       time.Duration
	depthThreshold int
	stuckAfter     time.Duration
	logger         *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithSampleInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

func WithDepthThreshold(n int) MonitorOption {
	return func(m *Monitor) { m.depthThreshold = n }
}

func WithStuckAfter(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.stuckAfter = d }
}

// NewMonitor constructs a Monitor over the given queues and store.
func NewMonitor(queues queue.Set, store postgres.TaskStore, metrics redisstore.MetricsStore, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		queues:         queues,
		store:          store,
		metrics:        metrics,
		interval:       defaultSampleInterval,
		depthThreshold: defaultDepthThreshold,
		stuckAfter:     defaultStuckAfter,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report is the outcome of one sampling pass.
type Report struct {
	Depths     map[domain.AgentType]int
	Overloaded []domain.AgentType
	StuckTasks int
}

// Run samples on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sample(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one pass over the queues and the store and publishes what it
// saw. Sink or store failures degrade to log lines; sampling never stops.
func (m *Monitor) Sample(ctx context.Context) Report {
	report := Report{Depths: make(map[domain.AgentType]int, len(m.queues))}

	for agentType, q := range m.queues {
		depth := q.Depth()
		report.Depths[agentType] = depth
		telemetry.MonitorQueueDepth.WithLabelValues(string(agentType)).Set(float64(depth))

		if m.metrics != nil {
			if err := m.metrics.SetQueueDepth(ctx, agentType, depth); err != nil {
				m.logger.Error("queue depth write failed",
					slog.String("agent_type", string(agentType)),
					slog.String("error", err.Error()),
				)
			}
		}

		if depth > m.depthThreshold {
			report.Overloaded = append(report.Overloaded, agentType)
			m.logger.Warn("queue depth above threshold",
				slog.String("agent_type", string(agentType)),
				slog.Int("depth", depth),
				slog.Int("threshold", m.depthThreshold),
			)
		}
	}

	stuck, err := m.store.CountRunningOlderThan(ctx, m.stuckAfter)
	if err != nil {
		m.logger.Error("stuck task count failed", slog.String("error", err.Error()))
		return report
	}
	report.StuckTasks = stuck
	telemetry.MonitorStuckTasks.Set(float64(stuck))
	if stuck > 0 {
		m.logger.Warn("stuck tasks detected",
			slog.Int("count", stuck),
			slog.Duration("threshold", m.stuckAfter),
		)
	}
	return report
}
