package domain

import (
	"time"
)

// PipelineRun: один цикл загрузки данных для источника и отчётной даты.
//
// Run создаётся при старте нового цикла, переходит между стадиями
// workflow и никогда не удаляется.
type PipelineRun struct {
	// ID: идентификатор run.
	ID int64 `json:"id"`

	// DataSourceID: источник данных, которому принадлежит run.
	DataSourceID int64 `json:"data_source_id"`

	// RecordDate: отчётная дата загружаемых данных.
	RecordDate time.Time `json:"record_date"`

	// Stage: текущая стадия workflow.
	Stage string `json:"stage"`

	// State: READY или ACTIVE.
	State RunState `json:"state"`

	// Назначенные пользователи по ролям (сбор/загрузка/проверка/QA).
	CollectionUserID *int64 `json:"collection_user_id,omitempty"`
	LoadUserID       *int64 `json:"load_user_id,omitempty"`
	CheckUserID      *int64 `json:"check_user_id,omitempty"`
	QAUserID         *int64 `json:"qa_user_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive возвращает true, если в run есть задачи в работе.
func (r *PipelineRun) IsActive() bool {
	return r.State == RunStateActive
}

// Activate переводит run в ACTIVE.
func (r *PipelineRun) Activate() {
	r.State = RunStateActive
	r.UpdatedAt = time.Now()
}

// MarkReady переводит run в READY.
func (r *PipelineRun) MarkReady() {
	r.State = RunStateReady
	r.UpdatedAt = time.Now()
}

// RecordDateKey возвращает отчётную дату в формате каталога (YYYYMMDD).
func (r *PipelineRun) RecordDateKey() string {
	return r.RecordDate.Format("20060102")
}
