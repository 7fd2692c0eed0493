package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

var _ redisstore.RateLimiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}
func (l *fakeLimiter) Limit() int            { return 3 }
func (l *fakeLimiter) Window() time.Duration { return time.Minute }

func submit(t *testing.T, limiter *fakeLimiter, body string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seenBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seenBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	SubmitRateLimit(limiter, slog.Default())(next).ServeHTTP(rec, req)
	return rec, seenBody
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestSubmitRateLimitCountsValidAgentType(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	body := `{"agent_type":"trainer","task_type":"start_rlhf_training"}`

	rec, seenBody := submit(t, limiter, body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"trainer"}, limiter.keys)
	assert.Equal(t, body, seenBody, "the peeked body must be restored for the handler")
}

func TestSubmitRateLimitSkipsUnknownAgentType(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}

	rec, _ := submit(t, limiter, `{"agent_type":"zzzz-churn","task_type":"x"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code, "validation is the handler's job")
	assert.Empty(t, limiter.keys, "garbage agent types must not create limiter keys")
}

func TestSubmitRateLimitRejectsOverLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}

	rec, _ := submit(t, limiter, `{"agent_type":"evaluator","task_type":"toxicity_check"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit")
}

func TestSubmitRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}

	rec, _ := submit(t, limiter, `{"agent_type":"support","task_type":"analyze_user_feedback"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code, "limiter trouble must not block intake")
}
