package credit

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failure with the HTTP status the API replies with.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return e.Reason
}

func apiError(status int, reason string) *APIError {
	return &APIError{Status: status, Reason: reason}
}

var (
	ErrNotLoaded       = apiError(http.StatusServiceUnavailable, "Database not loaded")
	ErrNoUsername      = apiError(http.StatusNotAcceptable, "No username set")
	ErrUsernameFormat  = apiError(http.StatusNotImplemented, "Unsupported username format")
	ErrUserExists      = apiError(http.StatusConflict, "User already exists")
	ErrUserNotFound    = apiError(http.StatusNotFound, "Username not found")
	ErrUnsupportedMode = apiError(http.StatusNotImplemented, "Unsupported credits update method")
	ErrCreditRange     = apiError(http.StatusNotImplemented, "Credit out of range")
)

// fieldTypeError reports a value of the wrong JSON type. The detail is
// hand-written JSON with a fixed key order.
func fieldTypeError(field string, value any, want string) *APIError {
	return apiError(http.StatusNotImplemented, fmt.Sprintf(
		`Unsupported field type {"fieldName":%q, "receivedType": "%s", "expectedType": "%s"}`,
		field, jsonType(value), want))
}

// StatusOf returns the status for err: the APIError status, or 500.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}
