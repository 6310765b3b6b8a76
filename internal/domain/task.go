package domain

import (
	"fmt"
	"time"
)

// TaskDefinition: определение задачи, общее для всех runs.
//
// Определения создаются миграциями (seed). Для каждого SYSTEM-определения
// при старте процесса должна существовать ровно одна зарегистрированная
// функция, иначе старт завершается ошибкой.
type TaskDefinition struct {
	// ID: глобально уникальный идентификатор задачи.
	ID int64 `json:"id"`

	// Name: отображаемое имя.
	Name string `json:"name"`

	// Description: описание для оператора.
	Description string `json:"description,omitempty"`

	// Kind: SYSTEM или USER.
	Kind TaskKind `json:"kind"`
}

// PipelineRunTask: узел дерева задач одного run.
//
// Узлы упорядочены парой (ParentID, SiblingOrder): ParentID = 0 означает
// корень, SiblingOrder уникален среди детей одного родителя и задаёт
// порядок выполнения слева направо.
type PipelineRunTask struct {
	// ID: идентификатор узла.
	ID int64 `json:"id"`

	// RunID: run, которому принадлежит узел.
	RunID int64 `json:"run_id"`

	// TaskID: ссылка на TaskDefinition.
	TaskID int64 `json:"task_id"`

	// ParentID: родительский узел (0 - корень).
	ParentID int64 `json:"parent_id"`

	// SiblingOrder: позиция среди братьев.
	SiblingOrder int `json:"sibling_order"`

	// Status: текущий статус.
	Status NodeStatus `json:"status"`

	// StartedAt: время перехода в Running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt: время перехода в Complete/Failed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Message: текст результата (успех или ошибка).
	Message string `json:"message,omitempty"`

	// FailureDetail: цепочка ошибок или stack trace при Failed.
	FailureDetail string `json:"failure_detail,omitempty"`

	// Stage: тег стадии workflow.
	Stage string `json:"stage,omitempty"`

	// CreatedAt: время создания узла.
	CreatedAt time.Time `json:"created_at"`
}

// IsRoot возвращает true для узлов верхнего уровня.
func (t *PipelineRunTask) IsRoot() bool {
	return t.ParentID == 0
}

// Duration возвращает продолжительность выполнения.
func (t *PipelineRunTask) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

func (t *PipelineRunTask) transition(to NodeStatus) error {
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("%w: node %d %s → %s", ErrInvalidTransition, t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// MarkScheduled переводит узел в Scheduled.
func (t *PipelineRunTask) MarkScheduled() error {
	return t.transition(NodeStatusScheduled)
}

// MarkRunning переводит узел в Running и фиксирует время старта.
func (t *PipelineRunTask) MarkRunning() error {
	if err := t.transition(NodeStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	t.StartedAt = &now
	t.CompletedAt = nil
	return nil
}

// MarkComplete переводит узел в Complete с необязательным сообщением.
func (t *PipelineRunTask) MarkComplete(msg string) error {
	if err := t.transition(NodeStatusComplete); err != nil {
		return err
	}
	now := time.Now()
	t.CompletedAt = &now
	t.Message = msg
	t.FailureDetail = ""
	return nil
}

// MarkFailed переводит узел в Failed с сообщением и деталями.
func (t *PipelineRunTask) MarkFailed(msg, detail string) error {
	if err := t.transition(NodeStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	t.CompletedAt = &now
	t.Message = msg
	t.FailureDetail = detail
	return nil
}

// ResetToWaiting возвращает узел в исходное состояние.
// Идентичность узла (ID, родитель, порядок, стадия) сохраняется.
func (t *PipelineRunTask) ResetToWaiting() {
	t.Status = NodeStatusWaiting
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Message = ""
	t.FailureDetail = ""
}

// RemovedTask: архивная копия узла, удалённого при reset.
type RemovedTask struct {
	PipelineRunTask

	// ResetRootID: узел, reset которого удалил эту запись.
	ResetRootID int64 `json:"reset_root_id"`

	// RemovedBy: пользователь, запросивший reset.
	RemovedBy int64 `json:"removed_by"`

	// RemovedAt: время архивации.
	RemovedAt time.Time `json:"removed_at"`
}
