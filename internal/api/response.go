package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/shaiso/Batchflow/internal/repo"
)

// ErrorCode — машиночитаемый код ошибки в ответе.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidWorkflow ErrorCode = "INVALID_WORKFLOW"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail — код и текст ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — тело ответа с одним объектом.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// writeJSON пишет статус и тело. Ошибка кодирования после WriteHeader
// уже не может изменить ответ, поэтому только логируется.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Success отвечает 200 с объектом.
func Success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отвечает 201 с созданным объектом.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List отвечает 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отвечает ошибкой. Request ID берётся из заголовка,
// выставленного middleware RequestID.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		RequestID: w.Header().Get(headerRequestID),
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError логирует причину и отвечает 500 без подробностей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// statusFor сопоставляет ошибку хранилища или движка ответу.
// Возвращает false для неизвестных ошибок.
func statusFor(err error) (int, ErrorCode, bool) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, true
	case errors.Is(err, repo.ErrAlreadyExists):
		return http.StatusConflict, ErrCodeConflict, true
	case errors.Is(err, repo.ErrInvalidState):
		return http.StatusUnprocessableEntity, ErrCodeInvalidState, true
	case errors.Is(err, engine.ErrInvalidSpec),
		errors.Is(err, engine.ErrEmptyWorkflow),
		errors.Is(err, engine.ErrInvalidName),
		errors.Is(err, engine.ErrInvalidPath),
		errors.Is(err, engine.ErrInvalidURI),
		errors.Is(err, engine.ErrDuplicateName),
		errors.Is(err, engine.ErrUnknownNode),
		errors.Is(err, engine.ErrUndeclaredOutput),
		errors.Is(err, engine.ErrEmptyGlob),
		errors.Is(err, engine.ErrCyclicDependency):
		return http.StatusBadRequest, ErrCodeInvalidWorkflow, true
	}
	return 0, "", false
}

// HandleError пишет ответ для err и возвращает true, если err != nil.
// notFoundMsg заменяет текст ошибки для 404.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	status, code, ok := statusFor(err)
	if !ok {
		InternalError(w, logger, err)
		return true
	}

	msg := err.Error()
	if status == http.StatusNotFound && notFoundMsg != "" {
		msg = notFoundMsg
	}
	Error(w, status, code, msg)
	return true
}
