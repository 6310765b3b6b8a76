package tasks

import "errors"

// Ошибки реестра.
var (
	// ErrTaskNotFound: id не зарегистрирован ни как SYSTEM, ни как USER.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask: функция с таким id уже зарегистрирована.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrTaskCollision: USER-определение имеет id зарегистрированной функции.
	ErrTaskCollision = errors.New("task id collision between system and user tasks")

	// ErrUnboundSystemTask: SYSTEM-определение без функции.
	ErrUnboundSystemTask = errors.New("system task definition has no registered function")

	// ErrUnknownSystemTask: функция без SYSTEM-определения в БД.
	ErrUnknownSystemTask = errors.New("registered function has no system task definition")

	// ErrNotBound: Resolve до успешного Bind.
	ErrNotBound = errors.New("registry is not bound to task definitions")
)
