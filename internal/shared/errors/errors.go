package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")
)

// Engine error types
var (
	ErrInvalidScore       = errors.New("invalid confidence score")
	ErrIllegalTransition  = errors.New("illegal case transition")
	ErrMissingDocument    = errors.New("blocked by missing document")
	ErrTaskFailed         = errors.New("agent task failed")
	ErrReconciliationItem = errors.New("reconciliation entry error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// InvalidScore rejects a confidence score outside [0,100].
func InvalidScore(score float64) *AppError {
	return &AppError{
		Err:        ErrInvalidScore,
		Message:    fmt.Sprintf("confidence score %.2f is outside [0,100]", score),
		Code:       "INVALID_SCORE",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]string{"score": fmt.Sprintf("%.2f", score)},
	}
}

// IllegalTransition signals a transition not defined for the current status.
// This is an integration error on the caller's side; the case is unchanged.
func IllegalTransition(currentStatus, action string) *AppError {
	return &AppError{
		Err:        ErrIllegalTransition,
		Message:    fmt.Sprintf("cannot %s a case in status %s", action, currentStatus),
		Code:       "ILLEGAL_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"status": currentStatus, "action": action},
	}
}

// BlockedByMissingDocument signals a transition refused because required
// documents are still missing. The missing types are listed so the caller
// can render exact remediation guidance.
func BlockedByMissingDocument(missing []string) *AppError {
	return &AppError{
		Err:        ErrMissingDocument,
		Message:    fmt.Sprintf("required documents missing: %s", strings.Join(missing, ", ")),
		Code:       "BLOCKED_BY_MISSING_DOCUMENT",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"missing_documents": strings.Join(missing, ",")},
	}
}

// TaskFailed wraps an upstream data-source failure. The failure is terminal
// for the task; retry is an explicit new task.
func TaskFailed(kind, reason string) *AppError {
	return &AppError{
		Err:        ErrTaskFailed,
		Message:    fmt.Sprintf("%s task failed: %s", kind, reason),
		Code:       "TASK_FAILED",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]string{"task_kind": kind, "reason": reason},
	}
}

// ReconciliationEntry wraps a single entry's failure in a batch. Sibling
// entries are unaffected.
func ReconciliationEntry(remittanceID string, err error) *AppError {
	return &AppError{
		Err:        ErrReconciliationItem,
		Message:    fmt.Sprintf("remittance %s could not be reconciled: %v", remittanceID, err),
		Code:       "RECONCILIATION_ENTRY_ERROR",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]string{"remittance_id": remittanceID},
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}
