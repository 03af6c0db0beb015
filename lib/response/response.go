package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getevo/evo/v2/lib/outcome"
	"github.com/getevo/evo/v2/lib/text"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	ErrorCodeInvalidInput    ErrorCode = "invalid_input"
	ErrorCodeInvalidActivity ErrorCode = "invalid_activity"

	ErrorCodeNotFound ErrorCode = "not_found"

	ErrorCodeInternalError ErrorCode = "internal_error"
	ErrorCodeDatabaseError ErrorCode = "database_error"
	ErrorCodeNotConfigured ErrorCode = "not_configured"
	ErrorCodeUnavailable   ErrorCode = "unavailable"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode `json:"error"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Response returns an outcome.Response for the error
func (e AppError) Response() outcome.Response {
	body := map[string]any{
		"error":   string(e.Code),
		"message": e.Message,
	}
	if e.Details != "" {
		body["details"] = e.Details
	}
	return outcome.Response{
		ContentType: "application/json",
		StatusCode:  e.StatusCode,
		Data:        text.ToJSON(body),
	}
}

func NewError(code ErrorCode, message string, statusCode int) AppError {
	return AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

var (
	ErrUnauthorized = AppError{
		Code:       ErrorCodeUnauthorized,
		Message:    "Invalid or missing API key. Use header: Authorization: APIKEY <key>",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidActivity = AppError{
		Code:       ErrorCodeInvalidActivity,
		Message:    "Activity could not be parsed",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = AppError{
		Code:       ErrorCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrDatabaseError = AppError{
		Code:       ErrorCodeDatabaseError,
		Message:    "Database operation failed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrShuttingDown = AppError{
		Code:       ErrorCodeUnavailable,
		Message:    "Bot is shutting down",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func Error(err AppError) outcome.Response {
	return err.Response()
}

// APIResponse represents a standardized API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r APIResponse) ToJSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Meta contains pagination metadata
type Meta struct {
	Page       int   `json:"page,omitempty"`
	Limit      int   `json:"limit,omitempty"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// OK creates a standardized success response
func OK(data any) outcome.Response {
	return OKWithMeta(data, nil)
}

// OKWithMeta creates a success response with metadata
func OKWithMeta(data any, meta *Meta) outcome.Response {
	return outcome.Response{
		ContentType: "application/json",
		StatusCode:  http.StatusOK,
		Data: APIResponse{
			Success: true,
			Data:    data,
			Meta:    meta,
		}.ToJSON(),
	}
}

// Unauthorized creates a 401 Unauthorized response
func Unauthorized(message string) outcome.Response {
	return Error(NewError(ErrorCodeUnauthorized, message, http.StatusUnauthorized))
}

// BadRequest creates a 400 Bad Request response
func BadRequest(message string) outcome.Response {
	return Error(NewError(ErrorCodeInvalidInput, message, http.StatusBadRequest))
}

// NotFound creates a 404 Not Found response
func NotFound(message string) outcome.Response {
	return Error(NewError(ErrorCodeNotFound, message, http.StatusNotFound))
}

// NotConfigured creates a 503 response for a feature whose settings are missing
func NotConfigured(message string) outcome.Response {
	return Error(NewError(ErrorCodeNotConfigured, message, http.StatusServiceUnavailable))
}
