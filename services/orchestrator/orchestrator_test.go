package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
)

// ── fakes ────────────────────────────────────────────────────────────────────

// fakeTaskStore is an in-memory TaskStore. Claim order mirrors the real
// query: priority descending, creation time ascending.
type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]*domain.AgentTask
	claimErr error
	termErr  error

	released  []string
	terminals map[string]domain.Status
	outputs   map[string]json.RawMessage
	errMsgs   map[string]string
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:     make(map[string]*domain.AgentTask),
		terminals: make(map[string]domain.Status),
		outputs:   make(map[string]json.RawMessage),
		errMsgs:   make(map[string]string),
	}
}

func (s *fakeTaskStore) Submit(_ context.Context, task *domain.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	cp.Status = domain.StatusPending
	s.tasks[task.ID] = &cp
	return nil
}

func (s *fakeTaskStore) FetchAndClaimPending(_ context.Context, limit int) ([]*domain.AgentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var pending []*domain.AgentTask
	for _, t := range s.tasks {
		if t.Status == domain.StatusPending {
			pending = append(pending, t)
		}
	}
	// priority DESC, created_at ASC
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			a, b := pending[i], pending[j]
			if b.Priority > a.Priority ||
				(b.Priority == a.Priority && b.CreatedAt.Before(a.CreatedAt)) {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	out := make([]*domain.AgentTask, 0, len(pending))
	for _, t := range pending {
		t.Status = domain.StatusRunning
		started := now
		t.StartedAt = &started
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeTaskStore) RecordTerminal(_ context.Context, id string, status domain.Status, output json.RawMessage, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.termErr != nil {
		return s.termErr
	}
	t, ok := s.tasks[id]
	if !ok || t.Status != domain.StatusRunning {
		return nil // mirrors the guarded UPDATE: not running means no-op
	}
	t.Status = status
	s.terminals[id] = status
	s.outputs[id] = output
	s.errMsgs[id] = errMsg
	return nil
}

func (s *fakeTaskStore) ReleaseToPending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = domain.StatusPending
		t.StartedAt = nil
	}
	s.released = append(s.released, id)
	return nil
}

func (s *fakeTaskStore) CountRunningOlderThan(_ context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-age)
	n := 0
	for _, t := range s.tasks {
		if t.Status == domain.StatusRunning && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id string) (*domain.AgentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTaskStore) status(id string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.Status
	}
	return ""
}

var _ postgres.TaskStore = (*fakeTaskStore)(nil)

type fakeJobStore struct {
	mu      sync.Mutex
	jobs    []domain.ScheduledJob
	lastRun map[string]time.Time
	nextRun map[string]time.Time
}

func newFakeJobStore(jobs ...domain.ScheduledJob) *fakeJobStore {
	return &fakeJobStore{
		jobs:    jobs,
		lastRun: make(map[string]time.Time),
		nextRun: make(map[string]time.Time),
	}
}

func (s *fakeJobStore) DueJobs(_ context.Context) ([]domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.ScheduledJob
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if next, ok := s.nextRun[j.ID]; ok && next.After(now) {
			continue
		}
		due = append(due, j)
	}
	return due, nil
}

func (s *fakeJobStore) MarkRun(_ context.Context, jobID string, lastRun, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[jobID] = lastRun
	s.nextRun[jobID] = nextRun
	return nil
}

var _ postgres.JobStore = (*fakeJobStore)(nil)

type fakeMetricsStore struct {
	mu     sync.Mutex
	depths map[domain.AgentType]int
	err    error
}

func newFakeMetricsStore() *fakeMetricsStore {
	return &fakeMetricsStore{depths: make(map[domain.AgentType]int)}
}

func (s *fakeMetricsStore) SetQueueDepth(_ context.Context, agentType domain.AgentType, depth int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.depths[agentType] = depth
	return nil
}

func (s *fakeMetricsStore) GetQueueDepth(_ context.Context, agentType domain.AgentType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depths[agentType], nil
}

func (s *fakeMetricsStore) CacheResult(_ context.Context, _ string, _ *domain.AgentTask) error {
	return nil
}

func (s *fakeMetricsStore) GetCachedResult(_ context.Context, taskID string) (*domain.AgentTask, error) {
	return nil, &domain.TaskNotFoundError{TaskID: taskID}
}

var _ redisstore.MetricsStore = (*fakeMetricsStore)(nil)

// fakeHandler records calls and returns scripted results.
type fakeHandler struct {
	agentType domain.AgentType
	taskType  string
	output    json.RawMessage
	err       error
	panicMsg  string
	block     time.Duration

	mu    sync.Mutex
	calls []string
}

func (h *fakeHandler) AgentType() domain.AgentType { return h.agentType }
func (h *fakeHandler) TaskType() string            { return h.taskType }

func (h *fakeHandler) Handle(ctx context.Context, task *domain.AgentTask) (json.RawMessage, error) {
	h.mu.Lock()
	h.calls = append(h.calls, task.ID)
	h.mu.Unlock()
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	if h.block > 0 {
		select {
		case <-time.After(h.block):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.output, h.err
}

func (h *fakeHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}
