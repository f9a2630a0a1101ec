package errors

import "net/http"

// APIError is the error shape returned by services and written by handlers.
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *APIError) WithDetails(details interface{}) *APIError {
	copied := *e
	copied.Details = details
	return &copied
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func Conflict(code, message string, details interface{}) *APIError {
	return New(http.StatusConflict, code, message).WithDetails(details)
}

// Unavailable reports a server that can no longer accept timer operations.
func Unavailable(message string) *APIError {
	if message == "" {
		message = "service unavailable"
	}
	return New(http.StatusServiceUnavailable, "unavailable", message)
}
