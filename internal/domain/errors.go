package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// UnknownAgentTypeError is returned when a submission names an agent type
// outside the closed enumeration.
type UnknownAgentTypeError struct {
	AgentType string
}

func (e *UnknownAgentTypeError) Error() string {
	return fmt.Sprintf("unknown agent type %q", e.AgentType)
}

// UnsupportedTaskTypeError is returned when no handler is registered for an
// (agent type, task type) pair. Tasks hitting this path are recorded as
// failed, never left running.
type UnsupportedTaskTypeError struct {
	AgentType AgentType
	TaskType  string
}

func (e *UnsupportedTaskTypeError) Error() string {
	return fmt.Sprintf("unsupported task type %q for agent %q", e.TaskType, e.AgentType)
}

// RateLimitExceededError is returned when submissions for an agent type
// exceed the configured rate limit.
type RateLimitExceededError struct {
	AgentType AgentType
	Limit     int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for agent type %q: limit is %d", e.AgentType, e.Limit)
}
