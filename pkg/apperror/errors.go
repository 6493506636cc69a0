package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Class is the reconciliation failure taxonomy an AppError belongs to.
type Class string

const (
	ClassTransient    Class = "transient"    // retried on the next tick
	ClassIntegrity    Class = "integrity"    // single record skipped
	ClassFatal        Class = "fatal"        // batch moved to FAILED
	ClassFinalization Class = "finalization" // transaction rolled back
	ClassRequest      Class = "request"      // ops API caller error
)

// AppError is a structured error carrying a taxonomy class and an HTTP mapping
// for the ops API.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Class      Class  `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int, class Class) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Class:      class,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, class Class, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Class:      class,
		Err:        err,
	}
}

// ClassOf reports the taxonomy class of err. Errors that are not AppErrors
// are treated as transient: the batch stays as it is and the next tick retries.
func ClassOf(err error) Class {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Class
	}
	return ClassTransient
}

// ---- Reconciliation (RECON) ----

func ErrRailUnavailable(rail string, err error) *AppError {
	return Wrap("RECON_001", fmt.Sprintf("Rail %s unavailable", rail), http.StatusBadGateway, ClassTransient, err)
}

func ErrMalformedRailResponse(rail string, err error) *AppError {
	return Wrap("RECON_001", fmt.Sprintf("Malformed response from rail %s", rail), http.StatusBadGateway, ClassTransient, err)
}

func ErrRecordIntegrity(message string) *AppError {
	return New("RECON_002", message, http.StatusUnprocessableEntity, ClassIntegrity)
}

func ErrBatchNotFound(batchID int64) *AppError {
	return New("RECON_003", fmt.Sprintf("Settlement batch %d not found", batchID), http.StatusNotFound, ClassFinalization)
}

func ErrIllegalTransition(from, to string) *AppError {
	return New("RECON_004", fmt.Sprintf("Illegal status transition %s -> %s", from, to), http.StatusConflict, ClassFinalization)
}

func ErrSubmissionRejected(rail, status string) *AppError {
	return New("RECON_005", fmt.Sprintf("Rail %s reports submission %s", rail, status), http.StatusUnprocessableEntity, ClassFatal)
}

func ErrUnknownRail(rail string) *AppError {
	return New("RECON_006", fmt.Sprintf("Rail %s is not configured", rail), http.StatusNotFound, ClassRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized, ClassRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrCallBudgetExhausted(rail string) *AppError {
	return New("RATE_001", fmt.Sprintf("Query budget for rail %s exhausted", rail), http.StatusTooManyRequests, ClassTransient)
}

func ErrRateLimitExceeded() *AppError {
	return New("RATE_002", "Too many requests", http.StatusTooManyRequests, ClassRequest)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, ClassFinalization, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, ClassTransient, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, ClassTransient, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest, ClassRequest)
}
