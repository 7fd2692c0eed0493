package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openchat-labs/agent-orchestrator/internal/domain"
	"github.com/openchat-labs/agent-orchestrator/internal/postgres"
	redisstore "github.com/openchat-labs/agent-orchestrator/internal/redis"
	"github.com/openchat-labs/agent-orchestrator/pkg/telemetry"
)

// REST handles HTTP requests for the API gateway. The Postgres row is the
// authoritative task record; Redis only serves queue-depth reads and a
// short-lived result cache.
type REST struct {
	store   postgres.TaskStore
	metrics redisstore.MetricsStore
	logger  *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(store postgres.TaskStore, metrics redisstore.MetricsStore, logger *slog.Logger) *REST {
	return &REST{store: store, metrics: metrics, logger: logger}
}

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	AgentType string          `json:"agent_type"`
	TaskType  string          `json:"task_type"`
	InputData json.RawMessage `json:"input_data"`
	Priority  *int            `json:"priority,omitempty"`
}

// SubmitTaskResponse is the 202 response body.
type SubmitTaskResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatusResponse is the GET /tasks/{id} response body.
type TaskStatusResponse struct {
	TaskID       string          `json:"task_id"`
	AgentType    string          `json:"agent_type"`
	TaskType     string          `json:"task_type"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	OutputData   json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// SubmitTask handles POST /api/v1/tasks: validates, defaults the priority,
// and inserts the pending row the scheduler will claim.
func (h *REST) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api-gateway").Start(r.Context(), "api_gateway.submit_task")
	defer span.End()

	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agentType := domain.AgentType(req.AgentType)
	if !agentType.Valid() {
		telemetry.APITasksRejected.WithLabelValues("unknown_agent_type").Inc()
		writeError(w, http.StatusBadRequest, (&domain.UnknownAgentTypeError{AgentType: req.AgentType}).Error())
		return
	}
	if req.TaskType == "" {
		writeError(w, http.StatusBadRequest, "field 'task_type' is required")
		return
	}

	priority := domain.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	if len(req.InputData) == 0 {
		req.InputData = json.RawMessage(`{}`)
	}

	task := &domain.AgentTask{
		ID:        uuid.New().String(),
		AgentType: agentType,
		TaskType:  req.TaskType,
		InputData: req.InputData,
		Priority:  priority,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.agent_type", req.AgentType),
		attribute.String("task.type", req.TaskType),
	)

	if err := h.store.Submit(ctx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		h.logger.Error("failed to submit task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	telemetry.APITasksSubmitted.WithLabelValues(req.AgentType).Inc()
	h.logger.Info("task submitted",
		slog.String("task_id", task.ID),
		slog.String("agent_type", req.AgentType),
		slog.String("task_type", req.TaskType),
	)

	writeJSON(w, http.StatusAccepted, SubmitTaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt,
	})
}

// GetTaskStatus handles GET /api/v1/tasks/{id}. Terminal tasks are served
// from the Redis result cache when possible, falling back to Postgres.
func (h *REST) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.metrics != nil {
		if task, err := h.metrics.GetCachedResult(ctx, id); err == nil {
			writeJSON(w, http.StatusOK, taskStatusResponse(task))
			return
		}
	}

	task, err := h.store.GetByID(ctx, id)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		h.logger.Error("failed to load task",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	if task.Status.IsTerminal() && h.metrics != nil {
		if err := h.metrics.CacheResult(ctx, id, task); err != nil {
			h.logger.Warn("result cache write failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, taskStatusResponse(task))
}

// QueueDepthsResponse is the GET /api/v1/queues response body.
type QueueDepthsResponse struct {
	Depths map[string]int `json:"depths"`
}

// GetQueueDepths handles GET /api/v1/queues from the Redis depth samples.
// Depths are observational: absent or expired samples read as zero.
func (h *REST) GetQueueDepths(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := QueueDepthsResponse{Depths: make(map[string]int, len(domain.AgentTypes()))}
	for _, at := range domain.AgentTypes() {
		depth, err := h.metrics.GetQueueDepth(ctx, at)
		if err != nil {
			h.logger.Error("queue depth read failed",
				slog.String("agent_type", string(at)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, "metrics store unavailable")
			return
		}
		resp.Depths[string(at)] = depth
	}
	writeJSON(w, http.StatusOK, resp)
}

// Healthz responds 200 unconditionally.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Readyz responds 200 once the store answers.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.CountRunningOlderThan(r.Context(), time.Hour); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func taskStatusResponse(task *domain.AgentTask) TaskStatusResponse {
	return TaskStatusResponse{
		TaskID:       task.ID,
		AgentType:    string(task.AgentType),
		TaskType:     task.TaskType,
		Status:       string(task.Status),
		Priority:     task.Priority,
		CreatedAt:    task.CreatedAt,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
		OutputData:   task.OutputData,
		ErrorMessage: task.ErrorMessage,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
