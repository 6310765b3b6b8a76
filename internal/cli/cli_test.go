package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// apiStub: минимальный сервер, отвечающий в формате Ingestor API.
type apiStub struct {
	t        *testing.T
	requests []*http.Request
	bodies   []string
}

func newAPIStub(t *testing.T) (*apiStub, *httptest.Server) {
	stub := &apiStub{t: t}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		if r.PathValue("id") == "404" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "run not found"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": 7, "data_source_id": 3, "record_date": "2024-01-31", "state": "READY",
			"stats":    map[string]int{"total": 4, "complete": 2, "waiting": 2},
			"progress": 0.5,
		}})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": 10, "run_id": 7, "task_id": 1, "status": "Complete"},
			{"id": 11, "run_id": 7, "task_id": 2, "parent_id": 10, "status": "Waiting"},
		}, "total": 2})
	})
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"run":   map[string]any{"id": 8, "data_source_id": 3, "record_date": "2024-01-31"},
			"tasks": []map[string]any{{"id": 20, "run_id": 8, "task_id": 1, "status": "Waiting"}},
		}})
	})
	mux.HandleFunc("POST /api/v1/runs/{id}/schedule-next", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]string{"code": "CONFLICT", "message": "run already complete"},
		})
	})
	mux.HandleFunc("POST /api/v1/runs/{id}/schedule-all", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"task": map[string]any{"id": 11, "run_id": 7, "task_id": 2, "status": "Scheduled"},
			"job":  map[string]any{"id": "job-1", "status": "enqueued", "run_next": true},
		}})
	})
	mux.HandleFunc("POST /api/v1/tasks/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"task":    map[string]any{"id": 10, "status": "Waiting"},
			"removed": []map[string]any{{"id": 11}, {"id": 12}},
		}})
	})
	mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		stub.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "job-1", "status": "done", "run_id": 7, "pipeline_run_task_id": 10},
		}, "total": 1})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *apiStub) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(body))
}

func (s *apiStub) last() (*http.Request, string) {
	s.t.Helper()
	if len(s.requests) == 0 {
		s.t.Fatal("no requests recorded")
	}
	i := len(s.requests) - 1
	return s.requests[i], s.bodies[i]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// execute собирает дерево команд как в main и выполняет args.
func execute(t *testing.T, baseURL string, jsonMode bool, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	clientFn := func() *Client { return NewClient(baseURL) }
	outputFn := func() *Output { return newOutput(jsonMode, &out, &errOut) }

	root := &cobra.Command{Use: "ingestor", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewRunCmd(clientFn, outputFn),
		NewTaskCmd(clientFn, outputFn),
		NewJobCmd(clientFn, outputFn),
		NewFileCmd(outputFn),
	)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestRunShow(t *testing.T) {
	_, srv := newAPIStub(t)

	stdout, _, err := execute(t, srv.URL, false, "run", "show", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"READY", "2024-01-31", "50%"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestRunShow_APIError(t *testing.T) {
	_, srv := newAPIStub(t)

	_, _, err := execute(t, srv.URL, false, "run", "show", "404")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "NOT_FOUND: run not found" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunTasks_QueryAndJSON(t *testing.T) {
	stub, srv := newAPIStub(t)

	stdout, _, err := execute(t, srv.URL, true, "run", "tasks", "7", "--stage", "load", "--user", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := stub.last()
	if got := req.URL.Query().Get("stage"); got != "load" {
		t.Errorf("expected stage=load, got %q", got)
	}
	if got := req.URL.Query().Get("user_id"); got != "5" {
		t.Errorf("expected user_id=5, got %q", got)
	}

	var tasks []TaskResponse
	if err := json.Unmarshal([]byte(stdout), &tasks); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if len(tasks) != 2 || tasks[1].ParentID == nil || *tasks[1].ParentID != 10 {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestRunCreate_Body(t *testing.T) {
	stub, srv := newAPIStub(t)

	_, stderr, err := execute(t, srv.URL, false, "run", "create",
		"--source", "3", "--date", "2024-01-31", "--root-task", "1", "--root-task", "2", "--load-user", "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Run created: 8") {
		t.Errorf("expected success message, got %q", stderr)
	}

	_, body := stub.last()
	var req CreateRunRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if req.DataSourceID != 3 || req.RecordDate != "2024-01-31" {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.RootTasks) != 2 || req.RootTasks[0] != 1 || req.RootTasks[1] != 2 {
		t.Errorf("unexpected root tasks: %v", req.RootTasks)
	}
	if req.LoadUserID == nil || *req.LoadUserID != 9 {
		t.Errorf("expected load_user_id 9, got %v", req.LoadUserID)
	}
	if req.CollectionUserID != nil {
		t.Errorf("expected collection_user_id omitted, got %v", *req.CollectionUserID)
	}
}

func TestRunCreate_RequiresFlags(t *testing.T) {
	_, srv := newAPIStub(t)

	if _, _, err := execute(t, srv.URL, false, "run", "create", "--source", "3"); err == nil {
		t.Fatal("expected error for missing --date")
	}
}

func TestRunNext_Conflict(t *testing.T) {
	stub, srv := newAPIStub(t)

	_, _, err := execute(t, srv.URL, false, "run", "next", "7", "--user", "4")
	if err == nil || !strings.HasPrefix(err.Error(), "CONFLICT") {
		t.Fatalf("expected CONFLICT error, got %v", err)
	}

	_, body := stub.last()
	if !strings.Contains(body, `"user_id":4`) {
		t.Errorf("expected user_id in body, got %s", body)
	}
}

func TestRunAll(t *testing.T) {
	_, srv := newAPIStub(t)

	_, stderr, err := execute(t, srv.URL, false, "run", "all", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Task 11 scheduled as job job-1") {
		t.Errorf("unexpected message: %q", stderr)
	}
}

func TestTaskReset(t *testing.T) {
	_, srv := newAPIStub(t)

	_, stderr, err := execute(t, srv.URL, false, "task", "reset", "10", "--user", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "2 descendants removed") {
		t.Errorf("unexpected message: %q", stderr)
	}
}

func TestJobList_StatusFilter(t *testing.T) {
	stub, srv := newAPIStub(t)

	stdout, _, err := execute(t, srv.URL, false, "job", "list", "--status", "done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := stub.last()
	if got := req.URL.Query().Get("status"); got != "done" {
		t.Errorf("expected status=done, got %q", got)
	}
	if !strings.Contains(stdout, "job-1") {
		t.Errorf("expected job in output:\n%s", stdout)
	}
}

func TestFileAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte("name,age\nAl,30\nBob,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "", true, "file", "analyze", path, "--no-fingerprint")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var results []struct {
		RecordCount int64 `json:"record_count"`
		Columns     []struct {
			Name   string `json:"name"`
			MinLen int    `json:"min_len"`
			MaxLen int    `json:"max_len"`
		} `json:"columns"`
	}
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if len(results) != 1 || results[0].RecordCount != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}
	name := results[0].Columns[0]
	if name.Name != "name" || name.MinLen != 2 || name.MaxLen != 3 {
		t.Errorf("unexpected name column: %+v", name)
	}
}

func TestParseRune(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", 0, false},
		{",", ',', false},
		{`\t`, '\t', false},
		{"|", '|', false},
		{"ab", 0, true},
	}

	for _, tt := range tests {
		got, err := parseRune(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRune(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRune(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseColumns(t *testing.T) {
	cols, err := parseColumns([]string{"id:N:5", "name:C", "note"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	if cols[0].Name != "id" || cols[0].Type != "N" || cols[0].Width != 5 {
		t.Errorf("unexpected first column: %+v", cols[0])
	}
	if cols[2].Type != "" || cols[2].Width != 0 {
		t.Errorf("unexpected last column: %+v", cols[2])
	}

	for _, bad := range []string{":C", "id:N:x", "id:N:0"} {
		if _, err := parseColumns([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestClient_APIErrorDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-9")
		if r.URL.Path == "/api/v1/jobs" {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]string{"code": "CONFLICT", "message": "run is complete"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")

	_, err := c.ScheduleNext("7", 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "CONFLICT" || apiErr.RequestID != "req-9" {
		t.Errorf("unexpected error details: %+v", apiErr)
	}

	_, err = c.ListJobs("", 0)
	if err == nil || err.Error() != "API error: HTTP 502" {
		t.Errorf("expected bare HTTP error, got %v", err)
	}
}
