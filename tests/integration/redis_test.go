//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
)

func newMetricsStore(t *testing.T) redisstore.MetricsStore {
	t.Helper()
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return redisstore.NewMetricsStore(client)
}

func TestRedis_QueueDepthRoundTrip(t *testing.T) {
	store := newMetricsStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetQueueDepth(ctx, domain.AgentTrainer, 17))

	depth, err := store.GetQueueDepth(ctx, domain.AgentTrainer)
	require.NoError(t, err)
	assert.Equal(t, 17, depth)
}

func TestRedis_QueueDepthMissingReadsZero(t *testing.T) {
	store := newMetricsStore(t)

	depth, err := store.GetQueueDepth(context.Background(), domain.AgentSupport)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "an absent or expired sample reads as zero, not an error")
}

func TestRedis_ResultCacheRoundTrip(t *testing.T) {
	store := newMetricsStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	task := &domain.AgentTask{
		ID:         uuid.New().String(),
		AgentType:  domain.AgentEvaluator,
		TaskType:   "toxicity_check",
		Status:     domain.StatusCompleted,
		Priority:   5,
		CreatedAt:  now,
		OutputData: json.RawMessage(`{"is_toxic":false}`),
	}
	require.NoError(t, store.CacheResult(ctx, task.ID, task))

	got, err := store.GetCachedResult(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.JSONEq(t, `{"is_toxic":false}`, string(got.OutputData))
}

func TestRedis_ResultCacheMiss(t *testing.T) {
	store := newMetricsStore(t)

	_, err := store.GetCachedResult(context.Background(), uuid.New().String())
	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRedis_RateLimiterSlidingWindow(t *testing.T) {
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	limiter := redisstore.NewRateLimiter(client, 3, 500*time.Millisecond)
	ctx := context.Background()
	key := fmt.Sprintf("trainer-%s", uuid.New().String())

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "request %d is inside the limit", i+1)
	}

	ok, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "the fourth request in the window is denied")

	// Once the window slides past, requests flow again.
	time.Sleep(600 * time.Millisecond)
	ok, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_RateLimiterKeysAreIndependent(t *testing.T) {
	client := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	limiter := redisstore.NewRateLimiter(client, 1, time.Minute)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "trainer")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "trainer")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Allow(ctx, "evaluator")
	require.NoError(t, err)
	assert.True(t, ok, "one saturated key must not starve another")
}
