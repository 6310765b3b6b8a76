package engine

import (
	"errors"
	"fmt"
)

// Ошибки поиска следующей задачи.
var (
	// ErrRunComplete: все узлы run завершены.
	ErrRunComplete = errors.New("all tasks complete")

	// ErrRunBlocked: узел run уже запланирован или выполняется, либо
	// запускать нечего, кроме поддеревьев упавших узлов.
	ErrRunBlocked = errors.New("run is blocked by an unfinished task")

	// ErrNodeNotInTree: узел отсутствует в переданном дереве.
	ErrNodeNotInTree = errors.New("node not in tree")
)

// BlockedError: run заблокирован конкретным узлом.
type BlockedError struct {
	NodeID int64
	Status string
}

// Error реализует интерфейс error.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("run is blocked by task %d (%s)", e.NodeID, e.Status)
}

// Unwrap возвращает ErrRunBlocked.
func (e *BlockedError) Unwrap() error {
	return ErrRunBlocked
}
