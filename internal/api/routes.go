package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, observe(h.logger, pattern, fn))
	}

	// Runs
	handle("GET /api/v1/runs", h.ListRuns)
	handle("POST /api/v1/runs", h.CreateRun)
	handle("GET /api/v1/runs/{id}", h.GetRun)
	handle("GET /api/v1/runs/{id}/tasks", h.ListRunTasks)
	handle("GET /api/v1/runs/{id}/removed-tasks", h.ListRemovedTasks)
	handle("POST /api/v1/runs/{id}/schedule-next", h.ScheduleNext)
	handle("POST /api/v1/runs/{id}/schedule-all", h.ScheduleAll)

	// Tasks
	handle("POST /api/v1/tasks/{id}/reset", h.ResetTask)

	// Jobs
	handle("GET /api/v1/jobs", h.ListJobs)
}
