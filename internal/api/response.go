package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Ingestor/internal/engine"
	"github.com/shaiso/Ingestor/internal/orchestrator"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/tasks"
)

// ErrorCode: машинно-читаемый код ошибки в конверте {"error": ...}.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type listEnvelope struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("response encode failed", "error", err)
	}
}

// Success отвечает 200 с {"data": ...}.
func Success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataEnvelope{Data: data})
}

// Created отвечает 201 с {"data": ...}.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, dataEnvelope{Data: data})
}

// List отвечает 200 с {"data": [...], "total": n}.
func List(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, listEnvelope{Data: data, Total: total})
}

// Error отвечает конвертом ошибки с заданным статусом.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// BadRequest отвечает 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// InternalError логирует причину и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// errorMapping связывает доменные ошибки с HTTP ответом.
// Проверяется по порядку, первая совпавшая запись выигрывает.
var errorMapping = []struct {
	targets []error
	status  int
	code    ErrorCode
}{
	{
		targets: []error{orchestrator.ErrRunNotFound, orchestrator.ErrTaskNotFound, repo.ErrNotFound},
		status:  http.StatusNotFound,
		code:    ErrCodeNotFound,
	},
	{
		targets: []error{orchestrator.ErrNoRootTasks, tasks.ErrTaskNotFound},
		status:  http.StatusBadRequest,
		code:    ErrCodeBadRequest,
	},
	{
		targets: []error{engine.ErrRunComplete, engine.ErrRunBlocked},
		status:  http.StatusConflict,
		code:    ErrCodeConflict,
	},
	{
		targets: []error{orchestrator.ErrNodeNotWaiting, orchestrator.ErrAwaitingUser, repo.ErrInvalidState},
		status:  http.StatusUnprocessableEntity,
		code:    ErrCodeInvalidState,
	},
}

// HandleError переводит ошибку сервиса в HTTP ответ.
// Возвращает false, если err == nil и ответ не записан.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}
	for _, m := range errorMapping {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				Error(w, m.status, m.code, err.Error())
				return true
			}
		}
	}
	InternalError(w, logger, err)
	return true
}
