package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

// SubmitRateLimit applies the sliding-window limiter per agent type on task
// submissions. The body is peeked for the agent_type field and restored for
// the next handler; requests without a readable agent_type pass through and
// fail validation downstream. A limiter error fails open: Redis trouble
// must not block intake.
func SubmitRateLimit(limiter redisstore.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var peek struct {
				AgentType string `json:"agent_type"`
			}
			// Unknown agent types skip the limiter entirely: the handler
			// rejects them with a 400, and counting them would let garbage
			// strings churn limiter keys in Redis.
			if json.Unmarshal(body, &peek) != nil || !domain.AgentType(peek.AgentType).Valid() {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), peek.AgentType)
			if err != nil {
				logger.Error("rate limiter error", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				telemetry.APITasksRejected.WithLabelValues("rate_limited").Inc()
				rlErr := &domain.RateLimitExceededError{
					AgentType: domain.AgentType(peek.AgentType),
					Limit:     limiter.Limit(),
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": rlErr.Error()})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
