package api

import (
	"net/http"

	"github.com/shaiso/Ingestor/internal/domain"
)

// ResetTask сбрасывает узел в Waiting и удаляет его поддерево.
// POST /api/v1/tasks/{id}/reset
func (h *Handler) ResetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid task id")
	if !ok {
		return
	}

	req, ok := decodeUser(w, r)
	if !ok {
		return
	}

	res, err := h.service.ResetTask(r.Context(), id, req.UserID)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, ResetResponse{
		Task:    TaskFromDomain(res.Node),
		Removed: TasksFromDomain(res.Removed),
	})
}

// ListJobs возвращает jobs очереди.
// GET /api/v1/jobs?status=...&limit=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := domain.ParseJobStatus(s)
		if !ok {
			BadRequest(w, "invalid status")
			return
		}
		status = parsed
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)

	jobs, err := h.service.Jobs(r.Context(), status, limit)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}

	List(w, result, len(result))
}
