// Package orchestrator is the task coordination engine: a scheduler claiming
// pending work from Postgres, one bounded dispatch queue and dispatcher per
// agent type, and a health monitor. The three kinds of loop run as
// independent goroutines sharing state only through the store and the
// queues.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openchat-labs/agent-orchestrator/internal/handlers"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	"github.com/openchat-labs/agent-orchestrator/internal/queue"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
)

// Params collects the dependencies and per-component options for an
// Orchestrator. Queues and stores are injected, never global.
type Params struct {
	Store    postgres.TaskStore
	Jobs     postgres.JobStore       // optional
	Metrics  redisstore.MetricsStore // optional
	Queues   queue.Set
	Registry *handlers.Registry
	Logger   *slog.Logger

	SchedulerOpts  []SchedulerOption
	DispatcherOpts []DispatcherOption
	MonitorOpts    []MonitorOption
}

// Orchestrator runs the scheduler, one dispatcher per agent type, and the
// monitor as a unit.
type Orchestrator struct {
	scheduler   *Scheduler
	dispatchers []*Dispatcher
	monitor     *Monitor
	logger      *slog.Logger
}

// New wires an Orchestrator from its dependencies.
func New(p Params) *Orchestrator {
	schedOpts := p.SchedulerOpts
	if p.Jobs != nil {
		schedOpts = append(schedOpts, WithJobStore(p.Jobs))
	}

	dispatchers := make([]*Dispatcher, 0, len(p.Queues))
	for _, q := range p.Queues {
		dispatchers = append(dispatchers, NewDispatcher(q, p.Store, p.Registry, p.Logger, p.DispatcherOpts...))
	}

	return &Orchestrator{
		scheduler:   NewScheduler(p.Store, p.Queues, p.Logger, schedOpts...),
		dispatchers: dispatchers,
		monitor:     NewMonitor(p.Queues, p.Store, p.Metrics, p.Logger, p.MonitorOpts...),
		logger:      p.Logger,
	}
}

// Run starts every loop and blocks until ctx is cancelled and the
// dispatchers have drained their in-flight tasks.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.scheduler.Run(ctx)
	}()

	for _, d := range o.dispatchers {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.monitor.Run(ctx)
	}()

	wg.Wait()
	o.logger.Info("orchestrator stopped")
}
