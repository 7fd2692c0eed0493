package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APITasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "api",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks submitted through the API gateway.",
	}, []string{"agent_type"})

	APITasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "api",
		Name:      "tasks_rejected_total",
		Help:      "Total submissions rejected, labelled by reason.",
	}, []string{"reason"})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerTasksClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "scheduler",
		Name:      "tasks_claimed_total",
		Help:      "Total tasks claimed from the store and enqueued.",
	}, []string{"agent_type"})

	SchedulerTasksReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "scheduler",
		Name:      "tasks_released_total",
		Help:      "Total claimed tasks released back to pending (queue full or unroutable).",
	}, []string{"agent_type"})

	SchedulerClaimErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "scheduler",
		Name:      "claim_errors_total",
		Help:      "Total failed claim cycles (store unreachable or query error).",
	})

	SchedulerJobsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "scheduler",
		Name:      "jobs_fired_total",
		Help:      "Total recurring jobs materialized into tasks.",
	}, []string{"job"})

	// ─── Dispatcher ──────────────────────────────────────────────────────────────

	DispatcherTasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "dispatcher",
		Name:      "tasks_processed_total",
		Help:      "Total tasks resolved to a terminal status, labelled by agent_type and status.",
	}, []string{"agent_type", "status"})

	DispatcherTasksInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "dispatcher",
		Name:      "tasks_inflight",
		Help:      "Tasks currently executing in a handler.",
	}, []string{"agent_type"})

	DispatcherTaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "dispatcher",
		Name:      "task_duration_seconds",
		Help:      "Handler execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"agent_type"})

	// ─── Monitor ─────────────────────────────────────────────────────────────────

	MonitorQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "queue_depth",
		Help:      "Sampled dispatch queue depth per agent type.",
	}, []string{"agent_type"})

	MonitorStuckTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "stuck_tasks",
		Help:      "Tasks running longer than the stuck threshold at last sample.",
	})

	// ─── Relay ───────────────────────────────────────────────────────────────────

	RelayPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "relay",
		Name:      "publishes_total",
		Help:      "Total envelopes published to downstream channels.",
	}, []string{"channel"})

	// ─── Trainer agent ───────────────────────────────────────────────────────────

	TrainerSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "trainer",
		Name:      "sessions_total",
		Help:      "Training sessions finished, labelled by terminal status.",
	}, []string{"status"})

	TrainerSessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "trainer",
		Name:      "session_duration_seconds",
		Help:      "Wall-clock training session duration in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})
)
