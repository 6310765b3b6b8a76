package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Ingestor/internal/orchestrator"
)

// ListRuns возвращает последние runs.
// GET /api/v1/runs?limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	runs, err := h.service.ListRuns(r.Context(), limit, offset)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun создаёт run и его корневые задачи.
// POST /api/v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.DataSourceID <= 0 {
		BadRequest(w, "data_source_id is required")
		return
	}
	recordDate, err := time.Parse(recordDateLayout, req.RecordDate)
	if err != nil {
		BadRequest(w, "record_date must be YYYY-MM-DD")
		return
	}

	roots := req.RootTasks
	if len(roots) == 0 {
		roots = h.defaultRootTasks
	}

	run, nodes, err := h.service.CreateRun(r.Context(), orchestrator.CreateRunParams{
		DataSourceID:     req.DataSourceID,
		RecordDate:       recordDate,
		Stage:            req.Stage,
		CollectionUserID: req.CollectionUserID,
		LoadUserID:       req.LoadUserID,
		CheckUserID:      req.CheckUserID,
		QAUserID:         req.QAUserID,
		RootTasks:        roots,
	})
	if HandleError(w, h.logger, err) {
		return
	}

	Created(w, CreateRunResponse{
		Run:   RunFromDomain(*run),
		Tasks: TasksFromDomain(nodes),
	})
}

// GetRun возвращает run со сводкой по задачам.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	sum, err := h.service.Summary(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, RunDetailResponse{
		RunResponse: RunFromDomain(*sum.Run),
		Stats:       sum.Stats,
		Progress:    sum.Stats.Progress(),
	})
}

// ListRunTasks возвращает задачи run в порядке выполнения.
// GET /api/v1/runs/{id}/tasks?stage=...&user_id=...
func (h *Handler) ListRunTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	userID := int64(parseIntDefault(r.URL.Query().Get("user_id"), 0))
	nodes, err := h.service.OrderedTasks(r.Context(), id, r.URL.Query().Get("stage"), userID)
	if HandleError(w, h.logger, err) {
		return
	}

	List(w, TasksFromDomain(nodes), len(nodes))
}

// ListRemovedTasks возвращает архив узлов, удалённых reset.
// GET /api/v1/runs/{id}/removed-tasks
func (h *Handler) ListRemovedTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	removed, err := h.service.RemovedTasks(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]RemovedTaskResponse, len(removed))
	for i := range removed {
		result[i] = RemovedTaskResponse{
			TaskResponse: TaskFromDomain(&removed[i].PipelineRunTask),
			ResetRootID:  removed[i].ResetRootID,
			RemovedBy:    removed[i].RemovedBy,
			RemovedAt:    removed[i].RemovedAt,
		}
	}

	List(w, result, len(result))
}

// ScheduleNext планирует следующую задачу run.
// POST /api/v1/runs/{id}/schedule-next
func (h *Handler) ScheduleNext(w http.ResponseWriter, r *http.Request) {
	h.schedule(w, r, h.service.ScheduleNext)
}

// ScheduleAll планирует следующую задачу с продолжением цепочки.
// POST /api/v1/runs/{id}/schedule-all
func (h *Handler) ScheduleAll(w http.ResponseWriter, r *http.Request) {
	h.schedule(w, r, h.service.ScheduleRunToCompletion)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, runID, userID int64) (*orchestrator.Scheduled, error)) {
	id, ok := pathID(w, r, "invalid run id")
	if !ok {
		return
	}

	req, ok := decodeUser(w, r)
	if !ok {
		return
	}

	scheduled, err := fn(r.Context(), id, req.UserID)
	if HandleError(w, h.logger, err) {
		return
	}

	Created(w, ScheduledResponse{
		Task: TaskFromDomain(scheduled.Node),
		Job:  JobFromDomain(*scheduled.Job),
	})
}

// pathID парсит {id} из пути; при ошибке отвечает 400.
func pathID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(w, msg)
		return 0, false
	}
	return id, true
}

// decodeUser читает UserRequest; пустое тело допустимо (user_id = 0).
func decodeUser(w http.ResponseWriter, r *http.Request) (UserRequest, bool) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return req, false
	}
	return req, true
}

// parseIntDefault парсит строку в int с дефолтным значением.
func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
