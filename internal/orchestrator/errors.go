package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки оркестратора.
var (
	// ErrRunNotFound: run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrTaskNotFound: узел дерева не найден.
	ErrTaskNotFound = errors.New("pipeline run task not found")

	// ErrNodeNotScheduled: узел нельзя запустить: он не в Scheduled.
	// Обычно означает устаревший job (узел сброшен или уже выполнен).
	ErrNodeNotScheduled = errors.New("pipeline run task is not scheduled")

	// ErrNodeNotRunning: после блокировки узел оказался не в Running.
	ErrNodeNotRunning = errors.New("pipeline run task is not running")

	// ErrNodeNotWaiting: планировать можно только Waiting-узел.
	ErrNodeNotWaiting = errors.New("pipeline run task is not waiting")

	// ErrAwaitingUser: следующая задача run - ручная контрольная точка.
	ErrAwaitingUser = errors.New("next task is a user checkpoint")

	// ErrNoRootTasks: run создаётся без корневых задач.
	ErrNoRootTasks = errors.New("run has no root tasks")
)

// PanicError: паника внутри SYSTEM-задачи.
type PanicError struct {
	Value any
	Stack []byte
}

// Error реализует интерфейс error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
