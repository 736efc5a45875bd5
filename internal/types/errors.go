package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Every component uses these instead of literal strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidDate    ErrorCode = "validation_invalid_date"
	ErrCodeValidationFeedFormat     ErrorCode = "validation_feed_format"
	ErrCodeValidationMissingHeader  ErrorCode = "validation_missing_header"
	ErrCodeValidationSignature      ErrorCode = "validation_signature_mismatch"
	ErrCodeValidationInvalidAPIKey  ErrorCode = "validation_invalid_api_key"
	ErrCodeValidationInvalidPayload ErrorCode = "validation_invalid_payload"
	ErrCodeValidationSchemaMismatch ErrorCode = "validation_schema_mismatch"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"

	// Auth (401)
	ErrCodeAuthNotifyToken ErrorCode = "auth_notify_token"

	// Not Found (404)
	ErrCodeNotFoundMessage      ErrorCode = "not_found_message"
	ErrCodeNotFoundMessageBatch ErrorCode = "not_found_message_batch"
	ErrCodeNotFoundClinic       ErrorCode = "not_found_clinic"
	ErrCodeNotFoundAppointment  ErrorCode = "not_found_appointment"

	// Conflict (409)
	ErrCodeConflictBatchState ErrorCode = "conflict_batch_state"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB             ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected     ErrorCode = "internal_unexpected_error"
	ErrCodeInternalRetryExhausted ErrorCode = "internal_retry_exhausted"
	ErrCodeInternalUnknownEnum    ErrorCode = "internal_unknown_enum"
	ErrCodeUpstreamMailbox        ErrorCode = "upstream_mailbox_unavailable"
	ErrCodeUpstreamNotify         ErrorCode = "upstream_notify_unavailable"
	ErrCodeUpstreamBlob           ErrorCode = "upstream_blob_unavailable"
	ErrCodeUpstreamQueue          ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamSMTP           ErrorCode = "upstream_smtp_unavailable"
	ErrCodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited    ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the single error type of the pipeline. Jobs, repositories and
// the webhook all report failures as AppError so that the job runner and the
// HTTP layer can classify them by Code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
