package a2a

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	a2aproto "github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"

	a2adomain "github.com/Strob0t/agentrelay/internal/domain/a2a"
)

// TaskReader reads persisted tasks.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (*a2adomain.Task, error)
	GetTasksBySession(ctx context.Context, sessionID string, state *a2adomain.TaskState) ([]a2adomain.Task, error)
}

// Handler serves the A2A protocol endpoints.
type Handler struct {
	baseURL string
	version string
	tasks   TaskReader
}

// NewHandler creates an A2A handler backed by tasks.
func NewHandler(baseURL, version string, tasks TaskReader) *Handler {
	return &Handler{baseURL: baseURL, version: version, tasks: tasks}
}

// MountRoutes registers A2A routes on the given chi router.
// These are mounted at the root level, not under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Get("/a2a/tasks/{id}", h.handleGetTask)
	r.Get("/a2a/sessions/{id}/tasks", h.handleSessionTasks)
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BuildAgentCard(h.baseURL, h.version))
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		slog.Error("a2a get task failed", "task_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, ToProtocolTask(t))
}

func (h *Handler) handleSessionTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tasks, err := h.tasks.GetTasksBySession(r.Context(), id, nil)
	if err != nil {
		slog.Error("a2a list session tasks failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	out := make([]*a2aproto.Task, 0, len(tasks))
	for i := range tasks {
		out = append(out, ToProtocolTask(&tasks[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ToProtocolTask renders a persisted task in A2A wire form. The session id
// becomes the protocol context id.
func ToProtocolTask(t *a2adomain.Task) *a2aproto.Task {
	ts := t.UpdatedAt
	meta := map[string]any{
		"task_type": t.Type,
		"priority":  string(t.Priority),
		"user_id":   t.UserID,
	}
	if t.CurrentAgent != "" {
		meta["current_agent"] = t.CurrentAgent
	}
	if len(t.ErrorData) > 0 {
		meta["error_data"] = map[string]any(t.ErrorData)
	}
	return &a2aproto.Task{
		ID:        a2aproto.TaskID(t.ID),
		ContextID: t.SessionID,
		Status: a2aproto.TaskStatus{
			State:     t.State.ProtocolState(),
			Timestamp: &ts,
		},
		Metadata: meta,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
