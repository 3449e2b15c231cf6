package apix

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Well-known service error codes.
const (
	// ErrorCodeRequestFailed marks transport-level failures that never
	// produced a service response.
	ErrorCodeRequestFailed = "request_failed"

	// ErrorCodeEnrollmentConflict reports that the device account is
	// already enrolled somewhere else.
	ErrorCodeEnrollmentConflict = "enrollment_conflict"

	// ErrorCodeEnrollmentNotFound reports that the referenced device
	// account does not exist.
	ErrorCodeEnrollmentNotFound = "enrollment_not_found"
)

// legacyErrorCodes maps error codes still emitted by older service
// deployments onto their current names. Applied once, at construction.
var legacyErrorCodes = map[string]string{
	"device_account_conflict":  ErrorCodeEnrollmentConflict,
	"device_account_not_found": ErrorCodeEnrollmentNotFound,
}

// APIError is the uniform error for every failed service round trip:
// non-2xx responses and transport failures alike.
type APIError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	ErrorCode  string `json:"errorCode"`

	// Cause holds the underlying transport error, when there is one.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.ErrorCode, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// Unwrap exposes the underlying transport error for errors.Is/As.
func (e *APIError) Unwrap() error { return e.Cause }

// parseErrorResponse converts a non-2xx response body into an
// *APIError, remapping legacy error codes.
func parseErrorResponse(statusCode int, body []byte) *APIError {
	var payload struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
		// Some endpoints still use the older field names.
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &payload)

	message := payload.Message
	if message == "" {
		message = payload.ErrorDescription
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode))
	}

	code := payload.ErrorCode
	if code == "" {
		code = payload.Error
	}
	if mapped, ok := legacyErrorCodes[code]; ok {
		code = mapped
	}
	if code == "" {
		code = ErrorCodeRequestFailed
	}

	return &APIError{
		Message:    message,
		StatusCode: statusCode,
		ErrorCode:  code,
	}
}
