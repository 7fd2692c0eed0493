// Package redis holds the ephemeral, observational stores. Nothing written
// here is authoritative; the Postgres row always wins.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
)

const (
	// depthTTL matches the monitor interval with headroom: a stale depth
	// disappears rather than lying.
	depthTTL  = 5 * time.Minute
	resultTTL = time.Hour
)

func depthKey(agentType domain.AgentType) string {
	return "agent_queue_size:" + string(agentType)
}

func resultKey(taskID string) string { return "task:result:" + taskID }

// MetricsStore holds queue-depth samples and a short-lived cache of terminal
// task results for the gateway.
type MetricsStore interface {
	SetQueueDepth(ctx context.Context, agentType domain.AgentType, depth int) error
	GetQueueDepth(ctx context.Context, agentType domain.AgentType) (int, error)
	CacheResult(ctx context.Context, taskID string, task *domain.AgentTask) error
	GetCachedResult(ctx context.Context, taskID string) (*domain.AgentTask, error)
}

type metricsStore struct {
	client *redis.Client
}

// NewMetricsStore creates a Redis-backed MetricsStore.
func NewMetricsStore(client *redis.Client) MetricsStore {
	return &metricsStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *metricsStore) SetQueueDepth(ctx context.Context, agentType domain.AgentType, depth int) error {
	if err := s.client.Set(ctx, depthKey(agentType), depth, depthTTL).Err(); err != nil {
		return fmt.Errorf("redis set queue depth for %s: %w", agentType, err)
	}
	return nil
}

func (s *metricsStore) GetQueueDepth(ctx context.Context, agentType domain.AgentType) (int, error) {
	depth, err := s.client.Get(ctx, depthKey(agentType)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get queue depth for %s: %w", agentType, err)
	}
	return depth, nil
}

func (s *metricsStore) CacheResult(ctx context.Context, taskID string, task *domain.AgentTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(taskID), data, resultTTL).Err(); err != nil {
		return fmt.Errorf("redis cache result for %s: %w", taskID, err)
	}
	return nil
}

func (s *metricsStore) GetCachedResult(ctx context.Context, taskID string) (*domain.AgentTask, error) {
	data, err := s.client.Get(ctx, resultKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return nil, fmt.Errorf("redis get cached result for %s: %w", taskID, err)
	}
	var task domain.AgentTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return &task, nil
}
