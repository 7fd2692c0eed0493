package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

// Handler executes one task type for one agent type. On success it returns
// the task's output payload; on business failure it returns an error that
// ends up in the task's error_message.
type Handler interface {
	Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error)
	AgentType() domain.AgentType
	TaskType() string
}

type key struct {
	agentType domain.AgentType
	taskType  string
}

// Registry maps (agent type, task type) pairs to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]Handler)}
}

// Register adds a handler, replacing any previous one for the same pair.
// Safe to call concurrently.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key{h.AgentType(), h.TaskType()}] = h
}

// Resolve returns the handler for the given pair, or an
// UnsupportedTaskTypeError if none is registered.
func (r *Registry) Resolve(agentType domain.AgentType, taskType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key{agentType, taskType}]
	if !ok {
		return nil, &domain.UnsupportedTaskTypeError{AgentType: agentType, TaskType: taskType}
	}
	return h, nil
}
