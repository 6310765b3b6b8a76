package worker

import "errors"

// Ошибки воркера.
var (
	// ErrAlreadyStarted: повторный вызов Start.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrStaleJob: узел job уже не в Scheduled (сброшен или выполнен).
	ErrStaleJob = errors.New("stale job")
)
