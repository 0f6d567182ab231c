package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common application errors
var (
	// Validation errors
	ErrInvalidInputData     = errors.New("invalid input data")
	ErrUnknownDataType      = errors.New("unknown data type")
	ErrColumnLengthMismatch = errors.New("columns have different lengths")
	ErrInvalidDescription   = errors.New("invalid dataset description")

	// Configuration errors
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrInsufficientAttributes = errors.New("insufficient attributes for a Bayesian network")

	// Generation errors
	ErrGenerationFailed    = errors.New("data generation failed")
	ErrGeneratorNotFound   = errors.New("generator not found")
	ErrGenerationCancelled = errors.New("generation cancelled")

	// Storage errors
	ErrStorageNotFound         = errors.New("storage backend not found")
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrDataNotFound            = errors.New("data not found")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeGeneration    ErrorType = "generation"
	ErrorTypePrivacy       ErrorType = "privacy"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause attaches the underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewGenerationError creates a generation error
func NewGenerationError(code, message string) *AppError {
	return NewAppError(ErrorTypeGeneration, code, message)
}

// NewPrivacyError creates a privacy error
func NewPrivacyError(code, message string) *AppError {
	return NewAppError(ErrorTypePrivacy, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewNotFoundError creates a storage error that matches ErrDataNotFound
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       CodeDataNotFound,
		Message:    message,
		Cause:      ErrDataNotFound,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// GetType returns the error type of err, or ErrorTypeInternal for foreign errors
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// HTTPStatus returns the status code an API should answer with for err
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err denotes a missing stored object
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDataNotFound)
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeConfiguration:
		return http.StatusBadRequest
	case ErrorTypePrivacy:
		return http.StatusForbidden
	case ErrorTypeStorage:
		return http.StatusServiceUnavailable
	case ErrorTypeInternal, ErrorTypeGeneration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput       = "INVALID_INPUT"
	CodeMissingField       = "MISSING_FIELD"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeOutOfRange         = "OUT_OF_RANGE"
	CodeUnknownDataType    = "UNKNOWN_DATA_TYPE"
	CodeInvalidValue       = "INVALID_VALUE"
	CodeLengthMismatch     = "LENGTH_MISMATCH"
	CodeInvalidDescription = "INVALID_DESCRIPTION"

	// Configuration error codes
	CodeInvalidConfig          = "INVALID_CONFIG"
	CodeInsufficientAttributes = "INSUFFICIENT_ATTRIBUTES"
	CodeInvalidEpsilon         = "INVALID_EPSILON"
	CodeInvalidDegree          = "INVALID_DEGREE"
	CodeInvalidHistogramSize   = "INVALID_HISTOGRAM_SIZE"
	CodeCandidateKeyExhausted  = "CANDIDATE_KEY_EXHAUSTED"

	// Generation error codes
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeGeneratorNotFound   = "GENERATOR_NOT_FOUND"
	CodeMissingNetwork      = "MISSING_NETWORK"
	CodeGenerationCancelled = "GENERATION_CANCELLED"

	// Privacy error codes
	CodeInvalidScores = "INVALID_SCORES"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeDataNotFound     = "DATA_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
