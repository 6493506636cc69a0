package response

import (
	"errors"
	"net/http"
	"time"

	"settlement-reconciler/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// internalErrorCode is reported for failures that carry no AppError.
const internalErrorCode = "SYS_000"

// SuccessResponse wraps every ops API payload: batch lookups, run summaries
// and health reports.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is what ops tooling receives when a batch lookup or a
// manual run fails.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"` // RECON_*, AUTH_*, RATE_* or SYS_*
	Message   string `json:"message"`
	// Class is the failure taxonomy; empty for unclassified errors.
	Class string `json:"class,omitempty"`
	// Retryable is set for transient failures the next scheduler tick
	// may clear without operator action.
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id"` // echoes X-Request-ID
	Timestamp string `json:"timestamp"`
}

// OK writes data in the success envelope.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// Error writes err in the error envelope using the AppError's status and
// class. Anything else is reported as an opaque 500.
func Error(c *gin.Context, err error) {
	resp := ErrorResponse{
		ErrorCode: internalErrorCode,
		Message:   "Internal server error",
		RequestID: requestID(c),
		Timestamp: now(),
	}
	status := http.StatusInternalServerError

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus
		resp.ErrorCode = appErr.Code
		resp.Message = appErr.Message
		resp.Class = string(appErr.Class)
		resp.Retryable = appErr.Class == apperror.ClassTransient
	}
	c.JSON(status, resp)
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
