package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/engine"
	"github.com/shaiso/Ingestor/internal/orchestrator"
)

// fakeService: RunService с одним run (id 1) и двумя узлами.
type fakeService struct {
	created    orchestrator.CreateRunParams
	scheduled  []int64
	runNext    bool
	resetBy    int64
	stage      string
	jobsStatus domain.JobStatus
	scheduleFn func() (*orchestrator.Scheduled, error)
}

func (f *fakeService) run() *domain.PipelineRun {
	return &domain.PipelineRun{
		ID:           1,
		DataSourceID: 7,
		RecordDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Stage:        "load",
		State:        domain.RunStateReady,
	}
}

func (f *fakeService) nodes() []*domain.PipelineRunTask {
	return []*domain.PipelineRunTask{
		{ID: 10, RunID: 1, TaskID: 1, SiblingOrder: 1, Status: domain.NodeStatusComplete, Message: "all 2 source files present"},
		{ID: 11, RunID: 1, TaskID: 2, SiblingOrder: 2, Status: domain.NodeStatusWaiting},
	}
}

func (f *fakeService) GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error) {
	if runID != 1 {
		return nil, fmt.Errorf("%w: %d", orchestrator.ErrRunNotFound, runID)
	}
	return f.run(), nil
}

func (f *fakeService) ListRuns(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error) {
	return []domain.PipelineRun{*f.run()}, nil
}

func (f *fakeService) Summary(ctx context.Context, runID int64) (*orchestrator.RunSummary, error) {
	run, err := f.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	nodes := f.nodes()
	return &orchestrator.RunSummary{Run: run, Tasks: nodes, Stats: orchestrator.Stats(nodes)}, nil
}

func (f *fakeService) CreateRun(ctx context.Context, params orchestrator.CreateRunParams) (*domain.PipelineRun, []*domain.PipelineRunTask, error) {
	f.created = params
	if len(params.RootTasks) == 0 {
		return nil, nil, orchestrator.ErrNoRootTasks
	}
	return f.run(), f.nodes(), nil
}

func (f *fakeService) OrderedTasks(ctx context.Context, runID int64, stage string, userID int64) ([]*domain.PipelineRunTask, error) {
	f.stage = stage
	if _, err := f.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return f.nodes(), nil
}

func (f *fakeService) RemovedTasks(ctx context.Context, runID int64) ([]domain.RemovedTask, error) {
	return []domain.RemovedTask{{PipelineRunTask: domain.PipelineRunTask{ID: 12, RunID: 1, TaskID: 101, ParentID: 10}, ResetRootID: 10, RemovedBy: 42}}, nil
}

func (f *fakeService) ResetTask(ctx context.Context, nodeID, userID int64) (*orchestrator.ResetResult, error) {
	if nodeID != 10 {
		return nil, fmt.Errorf("%w: %d", orchestrator.ErrTaskNotFound, nodeID)
	}
	f.resetBy = userID
	return &orchestrator.ResetResult{
		Node:    &domain.PipelineRunTask{ID: 10, RunID: 1, TaskID: 1, SiblingOrder: 1, Status: domain.NodeStatusWaiting},
		Removed: []*domain.PipelineRunTask{{ID: 12, RunID: 1, TaskID: 101, ParentID: 10}},
	}, nil
}

func (f *fakeService) schedule(runID, userID int64, runNext bool) (*orchestrator.Scheduled, error) {
	f.scheduled = append(f.scheduled, runID)
	f.runNext = runNext
	if f.scheduleFn != nil {
		return f.scheduleFn()
	}
	node := f.nodes()[1]
	node.Status = domain.NodeStatusScheduled
	return &orchestrator.Scheduled{
		Node: node,
		Job:  domain.NewExecuteJob(domain.JobProperties{PipelineRunTaskID: node.ID, RunID: runID, RunNext: runNext}),
	}, nil
}

func (f *fakeService) ScheduleNext(ctx context.Context, runID, userID int64) (*orchestrator.Scheduled, error) {
	return f.schedule(runID, userID, false)
}

func (f *fakeService) ScheduleRunToCompletion(ctx context.Context, runID, userID int64) (*orchestrator.Scheduled, error) {
	return f.schedule(runID, userID, true)
}

func (f *fakeService) Jobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error) {
	f.jobsStatus = status
	return []domain.ScheduledJob{*domain.NewExecuteJob(domain.JobProperties{PipelineRunTaskID: 11, RunID: 1})}, nil
}

func newTestServer(svc *fakeService) *httptest.Server {
	h := NewHandler(Config{
		Service:          svc,
		DefaultRootTasks: []int64{1, 2, 3},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestGetRun(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	resp, out := do(t, srv, http.MethodGet, "/api/v1/runs/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := out["data"].(map[string]any)
	if data["record_date"] != "2024-03-31" || data["state"] != "READY" {
		t.Errorf("unexpected run: %v", data)
	}
	stats := data["stats"].(map[string]any)
	if stats["total"] != float64(2) || stats["complete"] != float64(1) {
		t.Errorf("unexpected stats: %v", stats)
	}
	if data["progress"] != 0.5 {
		t.Errorf("expected progress 0.5, got %v", data["progress"])
	}
}

func TestGetRun_Errors(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	resp, out := do(t, srv, http.MethodGet, "/api/v1/runs/99", "")
	if resp.StatusCode != http.StatusNotFound || errorCode(out) != string(ErrCodeNotFound) {
		t.Errorf("expected 404 NOT_FOUND, got %d %v", resp.StatusCode, out)
	}

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/runs/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateRun(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, out := do(t, srv, http.MethodPost, "/api/v1/runs",
		`{"data_source_id": 7, "record_date": "2024-03-31", "stage": "load", "load_user_id": 5}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, out)
	}
	if len(svc.created.RootTasks) != 3 {
		t.Errorf("expected default root tasks, got %v", svc.created.RootTasks)
	}
	if svc.created.LoadUserID == nil || *svc.created.LoadUserID != 5 {
		t.Errorf("expected load user 5, got %v", svc.created.LoadUserID)
	}
	if !svc.created.RecordDate.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected record date %v", svc.created.RecordDate)
	}
	data := out["data"].(map[string]any)
	if tasks := data["tasks"].([]any); len(tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestCreateRun_Validation(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing data source", `{"record_date": "2024-03-31"}`},
		{"bad date", `{"data_source_id": 7, "record_date": "31.03.2024"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := do(t, srv, http.MethodPost, "/api/v1/runs", tt.body)
			if resp.StatusCode != http.StatusBadRequest || errorCode(out) != string(ErrCodeBadRequest) {
				t.Errorf("expected 400 BAD_REQUEST, got %d %v", resp.StatusCode, out)
			}
		})
	}
}

func TestListRunTasks(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, out := do(t, srv, http.MethodGet, "/api/v1/runs/1/tasks?stage=load&user_id=3", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if svc.stage != "load" {
		t.Errorf("expected stage filter, got %q", svc.stage)
	}
	tasks := out["data"].([]any)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	first := tasks[0].(map[string]any)
	if _, ok := first["parent_id"]; ok {
		t.Error("root task should not have parent_id")
	}
	if first["message"] != "all 2 source files present" {
		t.Errorf("unexpected message: %v", first["message"])
	}
}

func TestScheduleEndpoints(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, out := do(t, srv, http.MethodPost, "/api/v1/runs/1/schedule-next", `{"user_id": 42}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, out)
	}
	if svc.runNext {
		t.Error("schedule-next must not chain")
	}
	job := out["data"].(map[string]any)["job"].(map[string]any)
	if job["pipeline_run_task_id"] != float64(11) || job["status"] != "enqueued" {
		t.Errorf("unexpected job: %v", job)
	}

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/runs/1/schedule-all", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with empty body, got %d", resp.StatusCode)
	}
	if !svc.runNext {
		t.Error("schedule-all must chain")
	}
}

func TestSchedule_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"complete", engine.ErrRunComplete, http.StatusConflict, ErrCodeConflict},
		{"blocked", &engine.BlockedError{NodeID: 11, Status: "Failed"}, http.StatusConflict, ErrCodeConflict},
		{"not waiting", orchestrator.ErrNodeNotWaiting, http.StatusUnprocessableEntity, ErrCodeInvalidState},
		{"run not found", orchestrator.ErrRunNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{scheduleFn: func() (*orchestrator.Scheduled, error) { return nil, tt.err }}
			srv := newTestServer(svc)
			defer srv.Close()

			resp, out := do(t, srv, http.MethodPost, "/api/v1/runs/1/schedule-next", "")
			if resp.StatusCode != tt.status || errorCode(out) != string(tt.code) {
				t.Errorf("expected %d %s, got %d %v", tt.status, tt.code, resp.StatusCode, out)
			}
		})
	}
}

func TestResetTask(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, out := do(t, srv, http.MethodPost, "/api/v1/tasks/10/reset", `{"user_id": 42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if svc.resetBy != 42 {
		t.Errorf("expected user 42, got %d", svc.resetBy)
	}
	data := out["data"].(map[string]any)
	if data["task"].(map[string]any)["status"] != "Waiting" {
		t.Errorf("unexpected task: %v", data["task"])
	}
	if removed := data["removed"].([]any); len(removed) != 1 {
		t.Errorf("expected 1 removed, got %d", len(removed))
	}

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/tasks/999/reset", `{"user_id": 42}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListRemovedTasks(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	resp, out := do(t, srv, http.MethodGet, "/api/v1/runs/1/removed-tasks", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	removed := out["data"].([]any)[0].(map[string]any)
	if removed["removed_by"] != float64(42) || removed["parent_id"] != float64(10) {
		t.Errorf("unexpected removed task: %v", removed)
	}
}

func TestListJobs(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, out := do(t, srv, http.MethodGet, "/api/v1/jobs?status=enqueued", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if svc.jobsStatus != domain.JobStatusEnqueued {
		t.Errorf("expected status filter, got %q", svc.jobsStatus)
	}
	if jobs := out["data"].([]any); len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/jobs?status=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %d", resp.StatusCode)
	}
}
