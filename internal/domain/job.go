package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxRetries: число автоматических повторов job. Повторов нет:
// упавшая задача перезапускается оператором через reset.
const MaxRetries = 0

// JobNameExecuteTask: имя единственного типа job в очереди.
const JobNameExecuteTask = "execute-pipeline-run-task"

// ScheduledJob: запись в долговременной очереди.
//
// Job создаётся при планировании узла (в той же транзакции, что и перевод
// узла в Scheduled), забирается воркером через lease и завершается
// статусом done или error.
type ScheduledJob struct {
	// ID: уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Status: текущий статус.
	Status JobStatus `json:"status"`

	// ScheduledAt: время, не раньше которого job можно забрать.
	ScheduledAt time.Time `json:"scheduled_at"`

	// RetryCount: всегда 0 (MaxRetries = 0).
	RetryCount int `json:"retry_count"`

	// Settings: имя job и его свойства.
	Settings JobSettings `json:"settings"`

	// Progress: последнее сообщение о ходе выполнения.
	Progress string `json:"progress,omitempty"`

	// LeasedUntil: время истечения lease воркера.
	// После истечения running job снова становится видимым.
	LeasedUntil *time.Time `json:"leased_until,omitempty"`

	// WorkerID: воркер, державший lease.
	WorkerID string `json:"worker_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSettings: содержимое JSONB-поля settings.
type JobSettings struct {
	Name       string        `json:"name"`
	Properties JobProperties `json:"properties"`
}

// JobProperties: свойства job.
type JobProperties struct {
	// PipelineRunTaskID: узел, который нужно выполнить.
	PipelineRunTaskID int64 `json:"pipelineRunTaskId"`

	// RunID: run узла.
	RunID int64 `json:"runId"`

	// RunNext: после успеха запланировать следующую системную задачу run.
	RunNext bool `json:"runNext"`
}

// NewExecuteJob создаёт job для выполнения узла.
func NewExecuteJob(props JobProperties) *ScheduledJob {
	now := time.Now()
	return &ScheduledJob{
		ID:          uuid.New(),
		Status:      JobStatusEnqueued,
		ScheduledAt: now,
		RetryCount:  0,
		Settings: JobSettings{
			Name:       JobNameExecuteTask,
			Properties: props,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
