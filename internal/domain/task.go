package domain

import (
	"encoding/json"
	"time"
)

// AgentType is the closed set of worker categories. It decides which dispatch
// queue a task lands on and which handler set applies.
type AgentType string

const (
	AgentTrainer   AgentType = "trainer"
	AgentEvaluator AgentType = "evaluator"
	AgentDBManager AgentType = "db_manager"
	AgentSupport   AgentType = "support"
)

// AgentTypes returns every valid agent type, in a fixed order.
func AgentTypes() []AgentType {
	return []AgentType{AgentTrainer, AgentEvaluator, AgentDBManager, AgentSupport}
}

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTrainer, AgentEvaluator, AgentDBManager, AgentSupport:
		return true
	}
	return false
}

// Status represents the states a task can be in. Transitions are
// one-directional: pending → running → completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultPriority is assigned when a submitter does not specify one.
// Higher priorities dispatch first.
const DefaultPriority = 5

// AgentTask is the unit of work consumed by agent workers.
//
// OutputData and ErrorMessage are mutually exclusive and populated only on
// the terminal transition.
type AgentTask struct {
	ID           string          `json:"id"`
	AgentType    AgentType       `json:"agent_type"`
	TaskType     string          `json:"task_type"`
	InputData    json.RawMessage `json:"input_data"`
	Priority     int             `json:"priority"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	OutputData   json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ScheduledJob is a recurring job template. The scheduler materializes due
// jobs into pending AgentTask rows on each cycle.
type ScheduledJob struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CronExpr  string          `json:"cron_expr"`
	AgentType AgentType       `json:"agent_type"`
	TaskType  string          `json:"task_type"`
	InputData json.RawMessage `json:"input_data"`
	Enabled   bool            `json:"enabled"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt *time.Time      `json:"next_run_at,omitempty"`
}

// TrainingSession tracks the downstream lifecycle of work handed off through
// the relay. It is owned by the trainer agent, not the orchestrator: a task's
// terminal "completed" status only covers the hand-off.
type TrainingSession struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"task_id"`
	SessionType  string          `json:"session_type"`
	Status       Status          `json:"status"`
	Config       json.RawMessage `json:"config"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
