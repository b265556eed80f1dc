package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/service"
)

// Handlers holds the HTTP handler dependencies. MCP may be nil when no
// tool servers are configured.
type Handlers struct {
	A2A *service.A2AService
	MCP *service.MCPOrchestrator
}

type healthResponse struct {
	Status   string `json:"status"`
	MCPReady *bool  `json:"mcp_ready,omitempty"`
}

// Health handles GET /health. The relay is "degraded" while tool servers
// are not ready; the endpoint still answers 200 so the store stays
// reachable for dashboards.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.MCP != nil {
		ready := h.MCP.IsReady()
		resp.MCPReady = &ready
		if !ready {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Stats ---

// GetStats handles GET /api/v1/a2a/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.A2A.GetStats(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetInteractionStats handles GET /api/v1/a2a/users/{id}/interaction-stats?timeframe=
func (h *Handlers) GetInteractionStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r, "id")
	if !ok {
		return
	}
	tf := a2a.ParseTimeframe(r.URL.Query().Get("timeframe"))
	st, err := h.A2A.GetInteractionStats(r.Context(), userID, tf)
	if err != nil {
		writeDomainError(w, err, "interaction stats not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetPerformanceMetrics handles GET /api/v1/a2a/performance?days=
func (h *Handlers) GetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	m, err := h.A2A.GetPerformanceMetrics(r.Context(), days)
	if err != nil {
		writeDomainError(w, err, "performance metrics not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RunCleanup handles POST /api/v1/a2a/cleanup
func (h *Handlers) RunCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.A2A.Cleanup(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Tasks ---

// CreateTask handles POST /api/v1/a2a/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[a2a.CreateTaskRequest](w, r)
	if !ok {
		return
	}
	t, err := h.A2A.CreateTask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "task creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// LogMessage handles POST /api/v1/a2a/messages
func (h *Handlers) LogMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[a2a.LogMessageRequest](w, r)
	if !ok {
		return
	}
	m, err := h.A2A.LogMessage(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetTask handles GET /api/v1/a2a/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	handleGetByParam("id", h.A2A.GetTask, "task not found")(w, r)
}

// ListTaskMessages handles GET /api/v1/a2a/tasks/{id}/messages?limit=
func (h *Handlers) ListTaskMessages(w http.ResponseWriter, r *http.Request) {
	handleListByParam("id", h.A2A.GetMessagesByTask, "task not found")(w, r)
}

// ListTaskInteractions handles GET /api/v1/a2a/tasks/{id}/interactions
func (h *Handlers) ListTaskInteractions(w http.ResponseWriter, r *http.Request) {
	handleListByParam("id", func(ctx context.Context, id string, _ int) ([]a2a.Interaction, error) {
		return h.A2A.GetInteractionsByTask(ctx, id)
	}, "task not found")(w, r)
}

// ListUserTasks handles GET /api/v1/a2a/users/{id}/tasks?limit=
func (h *Handlers) ListUserTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	tasks, err := h.A2A.GetUserTasks(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeList(w, tasks)
}

// ListActiveUserTasks handles GET /api/v1/a2a/users/{id}/tasks/active
func (h *Handlers) ListActiveUserTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r, "id")
	if !ok {
		return
	}
	tasks, err := h.A2A.GetActiveTasks(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeList(w, tasks)
}

// --- Sessions ---

// ListActiveSessions handles GET /api/v1/a2a/sessions?user_id=
func (h *Handlers) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = &id
	}
	sessions, err := h.A2A.GetActiveSessions(r.Context(), userID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeList(w, sessions)
}

// UpsertSession handles PUT /api/v1/a2a/sessions
func (h *Handlers) UpsertSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[a2a.UpsertSessionRequest](w, r)
	if !ok {
		return
	}
	ss, err := h.A2A.UpsertSessionState(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

// GetSession handles GET /api/v1/a2a/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	handleGetByParam("id", h.A2A.GetSessionState, "session not found")(w, r)
}

// DeactivateSession handles DELETE /api/v1/a2a/sessions/{id}
func (h *Handlers) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.A2A.DeactivateSession(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessionTasks handles GET /api/v1/a2a/sessions/{id}/tasks?state=
func (h *Handlers) ListSessionTasks(w http.ResponseWriter, r *http.Request) {
	var state *a2a.TaskState
	if raw := r.URL.Query().Get("state"); raw != "" {
		st := a2a.TaskState(raw)
		state = &st
	}
	tasks, err := h.A2A.GetTasksBySession(r.Context(), urlParam(r, "id"), state)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeList(w, tasks)
}

// ListSessionMessages handles GET /api/v1/a2a/sessions/{id}/messages?limit=
func (h *Handlers) ListSessionMessages(w http.ResponseWriter, r *http.Request) {
	handleListByParam("id", h.A2A.GetMessagesBySession, "session not found")(w, r)
}

// --- MCP tool servers ---

// GetMCPStatus handles GET /api/v1/mcp/status
func (h *Handlers) GetMCPStatus(w http.ResponseWriter, _ *http.Request) {
	if h.MCP == nil {
		writeError(w, http.StatusServiceUnavailable, "mcp orchestrator not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.MCP.Status())
}

// RestartMCPServer handles POST /api/v1/mcp/servers/{name}/restart
func (h *Handlers) RestartMCPServer(w http.ResponseWriter, r *http.Request) {
	if h.MCP == nil {
		writeError(w, http.StatusServiceUnavailable, "mcp orchestrator not configured")
		return
	}
	name := urlParam(r, "name")
	if err := h.MCP.RestartServer(r.Context(), name); err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting", "server": name})
}
