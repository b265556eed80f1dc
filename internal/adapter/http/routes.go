package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the ops API on the given chi router. limit, when
// set, wraps the /api/v1 group.
func MountRoutes(r chi.Router, h *Handlers, limit func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Route("/a2a", func(r chi.Router) {
			// Stats and maintenance
			r.Get("/stats", h.GetStats)
			r.Get("/performance", h.GetPerformanceMetrics)
			r.Post("/cleanup", h.RunCleanup)

			// Tasks
			r.Post("/tasks", h.CreateTask)
			r.Get("/tasks/{id}", h.GetTask)
			r.Get("/tasks/{id}/messages", h.ListTaskMessages)
			r.Get("/tasks/{id}/interactions", h.ListTaskInteractions)

			r.Post("/messages", h.LogMessage)

			// Sessions
			r.Get("/sessions", h.ListActiveSessions)
			r.Put("/sessions", h.UpsertSession)
			r.Get("/sessions/{id}", h.GetSession)
			r.Delete("/sessions/{id}", h.DeactivateSession)
			r.Get("/sessions/{id}/tasks", h.ListSessionTasks)
			r.Get("/sessions/{id}/messages", h.ListSessionMessages)

			// Users
			r.Get("/users/{id}/tasks", h.ListUserTasks)
			r.Get("/users/{id}/tasks/active", h.ListActiveUserTasks)
			r.Get("/users/{id}/interaction-stats", h.GetInteractionStats)
		})

		// MCP tool servers
		r.Get("/mcp/status", h.GetMCPStatus)
		r.Post("/mcp/servers/{name}/restart", h.RestartMCPServer)
	})
}
