package domain

import "errors"

// ErrInvalidTransition: переход статуса не допускается state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// NodeStatus: статус узла дерева задач run.
//
// Жизненный цикл:
//
//	Waiting → Scheduled → Running → Complete
//	                              ↘ Failed
//
// Любой узел можно сбросить обратно в Waiting (reset), при этом
// всё его поддерево удаляется в архив.
type NodeStatus string

const (
	// NodeStatusWaiting: узел ждёт своей очереди.
	NodeStatusWaiting NodeStatus = "Waiting"

	// NodeStatusScheduled: для узла создан job в очереди.
	NodeStatusScheduled NodeStatus = "Scheduled"

	// NodeStatusRunning: узел выполняется воркером.
	NodeStatusRunning NodeStatus = "Running"

	// NodeStatusComplete: узел успешно завершён.
	NodeStatusComplete NodeStatus = "Complete"

	// NodeStatusFailed: выполнение узла завершилось ошибкой.
	NodeStatusFailed NodeStatus = "Failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusComplete, NodeStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в допустимый набор.
func (s NodeStatus) IsValid() bool {
	switch s {
	case NodeStatusWaiting, NodeStatusScheduled, NodeStatusRunning,
		NodeStatusComplete, NodeStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода s → to.
// Переход в Waiting (reset) разрешён из любого статуса.
func (s NodeStatus) CanTransition(to NodeStatus) bool {
	if to == NodeStatusWaiting {
		return true
	}
	switch s {
	case NodeStatusWaiting:
		return to == NodeStatusScheduled
	case NodeStatusScheduled:
		return to == NodeStatusRunning
	case NodeStatusRunning:
		return to == NodeStatusComplete || to == NodeStatusFailed
	default:
		return false
	}
}

// RunState: состояние pipeline run.
type RunState string

const (
	// RunStateReady: run ждёт действий пользователя.
	RunStateReady RunState = "READY"

	// RunStateActive: в run есть запланированные или выполняющиеся задачи.
	RunStateActive RunState = "ACTIVE"
)

// TaskKind: тип определения задачи.
type TaskKind string

const (
	// TaskKindSystem: задача с исполняемой функцией.
	TaskKindSystem TaskKind = "SYSTEM"

	// TaskKindUser: ручная контрольная точка без исполняемого поведения.
	TaskKindUser TaskKind = "USER"
)

// JobStatus: статус записи в очереди jobs.
//
// Жизненный цикл:
//
//	enqueued → running → done
//	                   ↘ error
//
// Повторов нет (MaxRetries = 0). running может вернуться в enqueued
// только по истечении lease (воркер пропал).
type JobStatus string

const (
	JobStatusEnqueued JobStatus = "enqueued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusError    JobStatus = "error"
)

// IsTerminal возвращает true, если job завершён.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// ParseJobStatus парсит строку в JobStatus.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusEnqueued, JobStatusRunning, JobStatusDone, JobStatusError:
		return JobStatus(s), true
	default:
		return "", false
	}
}
