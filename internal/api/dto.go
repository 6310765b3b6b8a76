package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/orchestrator"
)

// recordDateLayout: формат отчётной даты в запросах и ответах.
const recordDateLayout = "2006-01-02"

// Run DTOs

// CreateRunRequest: запрос на создание run.
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

// UserRequest: тело запросов, выполняемых от имени пользователя.
type UserRequest struct {
	UserID int64 `json:"user_id"`
}

// RunResponse: ответ с run.
type RunResponse struct {
	ID               int64     `json:"id"`
	DataSourceID     int64     `json:"data_source_id"`
	RecordDate       string    `json:"record_date"`
	Stage            string    `json:"stage"`
	State            string    `json:"state"`
	CollectionUserID *int64    `json:"collection_user_id,omitempty"`
	LoadUserID       *int64    `json:"load_user_id,omitempty"`
	CheckUserID      *int64    `json:"check_user_id,omitempty"`
	QAUserID         *int64    `json:"qa_user_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RunFromDomain конвертирует domain.PipelineRun в RunResponse.
func RunFromDomain(r domain.PipelineRun) RunResponse {
	return RunResponse{
		ID:               r.ID,
		DataSourceID:     r.DataSourceID,
		RecordDate:       r.RecordDate.Format(recordDateLayout),
		Stage:            r.Stage,
		State:            string(r.State),
		CollectionUserID: r.CollectionUserID,
		LoadUserID:       r.LoadUserID,
		CheckUserID:      r.CheckUserID,
		QAUserID:         r.QAUserID,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// RunDetailResponse: run со сводкой по задачам.
type RunDetailResponse struct {
	RunResponse
	Stats    orchestrator.RunStats `json:"stats"`
	Progress float64               `json:"progress"`
}

// CreateRunResponse: созданный run и его корневые задачи.
type CreateRunResponse struct {
	Run   RunResponse    `json:"run"`
	Tasks []TaskResponse `json:"tasks"`
}

// Task DTOs

// TaskResponse: ответ с узлом дерева задач.
type TaskResponse struct {
	ID            int64      `json:"id"`
	RunID         int64      `json:"run_id"`
	TaskID        int64      `json:"task_id"`
	ParentID      *int64     `json:"parent_id,omitempty"`
	SiblingOrder  int        `json:"sibling_order"`
	Status        string     `json:"status"`
	Stage         string     `json:"stage,omitempty"`
	Message       string     `json:"message,omitempty"`
	FailureDetail string     `json:"failure_detail,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    int64      `json:"duration_ms,omitempty"`
}

// TaskFromDomain конвертирует domain.PipelineRunTask в TaskResponse.
func TaskFromDomain(t *domain.PipelineRunTask) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		RunID:         t.RunID,
		TaskID:        t.TaskID,
		SiblingOrder:  t.SiblingOrder,
		Status:        string(t.Status),
		Stage:         t.Stage,
		Message:       t.Message,
		FailureDetail: t.FailureDetail,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		DurationMs:    t.Duration().Milliseconds(),
	}
	if !t.IsRoot() {
		parent := t.ParentID
		resp.ParentID = &parent
	}
	return resp
}

// TasksFromDomain конвертирует срез узлов.
func TasksFromDomain(nodes []*domain.PipelineRunTask) []TaskResponse {
	result := make([]TaskResponse, len(nodes))
	for i, n := range nodes {
		result[i] = TaskFromDomain(n)
	}
	return result
}

// RemovedTaskResponse: архивная запись удалённого узла.
type RemovedTaskResponse struct {
	TaskResponse
	ResetRootID int64     `json:"reset_root_id"`
	RemovedBy   int64     `json:"removed_by"`
	RemovedAt   time.Time `json:"removed_at"`
}

// ResetResponse: итог reset.
type ResetResponse struct {
	Task    TaskResponse   `json:"task"`
	Removed []TaskResponse `json:"removed"`
}

// Job DTOs

// JobResponse: ответ с job.
type JobResponse struct {
	ID                uuid.UUID  `json:"id"`
	Status            string     `json:"status"`
	Name              string     `json:"name"`
	PipelineRunTaskID int64      `json:"pipeline_run_task_id"`
	RunID             int64      `json:"run_id"`
	RunNext           bool       `json:"run_next"`
	Progress          string     `json:"progress,omitempty"`
	WorkerID          string     `json:"worker_id,omitempty"`
	LeasedUntil       *time.Time `json:"leased_until,omitempty"`
	ScheduledAt       time.Time  `json:"scheduled_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// JobFromDomain конвертирует domain.ScheduledJob в JobResponse.
func JobFromDomain(j domain.ScheduledJob) JobResponse {
	return JobResponse{
		ID:                j.ID,
		Status:            string(j.Status),
		Name:              j.Settings.Name,
		PipelineRunTaskID: j.Settings.Properties.PipelineRunTaskID,
		RunID:             j.Settings.Properties.RunID,
		RunNext:           j.Settings.Properties.RunNext,
		Progress:          j.Progress,
		WorkerID:          j.WorkerID,
		LeasedUntil:       j.LeasedUntil,
		ScheduledAt:       j.ScheduledAt,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

// ScheduledResponse: запланированный узел и его job.
type ScheduledResponse struct {
	Task TaskResponse `json:"task"`
	Job  JobResponse  `json:"job"`
}
