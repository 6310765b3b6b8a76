package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Типы ответов повторяют api/dto.go: CLI не импортирует internal/api.

// RunResponse: run из API.
type RunResponse struct {
	ID           int64  `json:"id"`
	DataSourceID int64  `json:"data_source_id"`
	RecordDate   string `json:"record_date"`
	Stage        string `json:"stage"`
	State        string `json:"state"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// RunStats: счётчики узлов run по статусам.
type RunStats struct {
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	Scheduled int `json:"scheduled"`
	Running   int `json:"running"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
}

// RunDetailResponse: run со сводкой.
type RunDetailResponse struct {
	RunResponse
	Stats    RunStats `json:"stats"`
	Progress float64  `json:"progress"`
}

// TaskResponse: узел дерева задач из API.
type TaskResponse struct {
	ID            int64  `json:"id"`
	RunID         int64  `json:"run_id"`
	TaskID        int64  `json:"task_id"`
	ParentID      *int64 `json:"parent_id,omitempty"`
	SiblingOrder  int    `json:"sibling_order"`
	Status        string `json:"status"`
	Stage         string `json:"stage,omitempty"`
	Message       string `json:"message,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
}

// RemovedTaskResponse: архивная запись удалённого узла.
type RemovedTaskResponse struct {
	TaskResponse
	ResetRootID int64  `json:"reset_root_id"`
	RemovedBy   int64  `json:"removed_by"`
	RemovedAt   string `json:"removed_at"`
}

// CreateRunResponse: созданный run и его корневые задачи.
type CreateRunResponse struct {
	Run   RunResponse    `json:"run"`
	Tasks []TaskResponse `json:"tasks"`
}

// ResetResponse: итог reset.
type ResetResponse struct {
	Task    TaskResponse   `json:"task"`
	Removed []TaskResponse `json:"removed"`
}

// JobResponse: job из API.
type JobResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Name              string `json:"name"`
	PipelineRunTaskID int64  `json:"pipeline_run_task_id"`
	RunID             int64  `json:"run_id"`
	RunNext           bool   `json:"run_next"`
	Progress          string `json:"progress,omitempty"`
	WorkerID          string `json:"worker_id,omitempty"`
	ScheduledAt       string `json:"scheduled_at"`
	UpdatedAt         string `json:"updated_at"`
}

// ScheduledResponse: запланированный узел и его job.
type ScheduledResponse struct {
	Task TaskResponse `json:"task"`
	Job  JobResponse  `json:"job"`
}

// CreateRunRequest: создание run.
type CreateRunRequest struct {
	DataSourceID     int64   `json:"data_source_id"`
	RecordDate       string  `json:"record_date"`
	Stage            string  `json:"stage,omitempty"`
	CollectionUserID *int64  `json:"collection_user_id,omitempty"`
	LoadUserID       *int64  `json:"load_user_id,omitempty"`
	CheckUserID      *int64  `json:"check_user_id,omitempty"`
	QAUserID         *int64  `json:"qa_user_id,omitempty"`
	RootTasks        []int64 `json:"root_tasks,omitempty"`
}

type userRequest struct {
	UserID int64 `json:"user_id"`
}

// ListTasksOpts: параметры выборки задач run.
type ListTasksOpts struct {
	Stage  string
	UserID int64
}

// APIError: ответ API с конвертом {"error": ...}.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return e.Code + ": " + e.Message
}

// envelope покрывает все три формы ответа API.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client: HTTP-клиент Ingestor API.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient создаёт клиент; baseURL без завершающего слеша.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// ListRuns возвращает последние runs.
func (c *Client) ListRuns(limit, offset int) ([]RunResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun создаёт run с корневыми задачами.
func (c *Client) CreateRun(req CreateRunRequest) (*CreateRunResponse, error) {
	var created CreateRunResponse
	err := c.post("/api/v1/runs", req, &created)
	return &created, err
}

// GetRun возвращает run со сводкой.
func (c *Client) GetRun(id string) (*RunDetailResponse, error) {
	var run RunDetailResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// ListTasks возвращает задачи run в порядке выполнения.
func (c *Client) ListTasks(runID string, opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Stage != "" {
		params.Set("stage", opts.Stage)
	}
	if opts.UserID != 0 {
		params.Set("user_id", strconv.FormatInt(opts.UserID, 10))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/runs/"+runID+"/tasks", params, &tasks)
	return tasks, err
}

// ListRemoved возвращает архив узлов, удалённых reset.
func (c *Client) ListRemoved(runID string) ([]RemovedTaskResponse, error) {
	var removed []RemovedTaskResponse
	err := c.list("/api/v1/runs/"+runID+"/removed-tasks", nil, &removed)
	return removed, err
}

// ScheduleNext планирует следующую задачу run.
func (c *Client) ScheduleNext(runID string, userID int64) (*ScheduledResponse, error) {
	var s ScheduledResponse
	err := c.post("/api/v1/runs/"+runID+"/schedule-next", userRequest{UserID: userID}, &s)
	return &s, err
}

// ScheduleAll планирует run до завершения или контрольной точки.
func (c *Client) ScheduleAll(runID string, userID int64) (*ScheduledResponse, error) {
	var s ScheduledResponse
	err := c.post("/api/v1/runs/"+runID+"/schedule-all", userRequest{UserID: userID}, &s)
	return &s, err
}

// ResetTask сбрасывает узел и удаляет его потомков.
func (c *Client) ResetTask(nodeID string, userID int64) (*ResetResponse, error) {
	var r ResetResponse
	err := c.post("/api/v1/tasks/"+nodeID+"/reset", userRequest{UserID: userID}, &r)
	return &r, err
}

// ListJobs возвращает jobs очереди. status пустой - все.
func (c *Client) ListJobs(status string, limit int) ([]JobResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

func (c *Client) get(path string, out any) error {
	return c.call(http.MethodGet, path, nil, out)
}

func (c *Client) post(path string, body, out any) error {
	return c.call(http.MethodPost, path, body, out)
}

func (c *Client) list(path string, query url.Values, out any) error {
	if q := query.Encode(); q != "" {
		path += "?" + q
	}
	return c.call(http.MethodGet, path, nil, out)
}

// call выполняет запрос и раскладывает data в out.
// Любой статус >= 400 превращается в *APIError.
func (c *Client) call(method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if decodeErr == io.EOF {
		decodeErr = nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
