// Package queue provides the bounded per-agent-type dispatch queues that
// decouple claiming from execution. Queues are explicit objects injected at
// construction; nothing here touches global state.
package queue

import (
	"context"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// Queue is a FIFO dispatch channel for one agent type. Capacity is fixed at
// construction; HighWater is the depth at which the monitor flags overload.
type Queue struct {
	agentType domain.AgentType
	ch        chan *domain.AgentTask
	highWater int
}

// New creates a queue for the given agent type.
func New(agentType domain.AgentType, capacity, highWater int) *Queue {
	return &Queue{
		agentType: agentType,
		ch:        make(chan *domain.AgentTask, capacity),
		highWater: highWater,
	}
}

// AgentType returns the agent type this queue serves.
func (q *Queue) AgentType() domain.AgentType { return q.agentType }

// Push enqueues a task, blocking until there is space or ctx is done.
// Returns ctx.Err() if the context wins; the caller still owns the task.
func (q *Queue) Push(ctx context.Context, task *domain.AgentTask) error {
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next task, blocking until one is available or ctx is
// done. ok is false only on shutdown. Cancellation is checked before
// waiting, so a consumer loop stops at the next pop even when the buffer
// still holds a backlog; at most one task can win a race against a truly
// simultaneous cancel.
func (q *Queue) Pop(ctx context.Context) (task *domain.AgentTask, ok bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}
	select {
	case task = <-q.ch:
		return task, true
	case <-ctx.Done():
		return nil, false
	}
}

// Depth returns the number of tasks enqueued but not yet popped.
func (q *Queue) Depth() int { return len(q.ch) }

// Capacity returns the fixed buffer size.
func (q *Queue) Capacity() int { return cap(q.ch) }

// HighWater returns the overload threshold.
func (q *Queue) HighWater() int { return q.highWater }

// Set maps every valid agent type to its queue.
type Set map[domain.AgentType]*Queue

// NewSet builds one queue per agent type with uniform capacity and
// high-water mark.
func NewSet(capacity, highWater int) Set {
	set := make(Set, len(domain.AgentTypes()))
	for _, at := range domain.AgentTypes() {
		set[at] = New(at, capacity, highWater)
	}
	return set
}
