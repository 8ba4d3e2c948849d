// Package errors defines the error taxonomy of the sync engine. Every error
// that crosses a handler boundary is a *SyncError so that handlers can decide
// between logging and skipping, soft-failing a single value, or (for
// resource-limit errors only) restarting the watch.
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"syscall"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeParse is malformed file content.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeSecret is a secret that could not be decrypted.
	ErrorTypeSecret ErrorType = "secret"
	// ErrorTypeResourceLimit is the OS refusing more file watches.
	ErrorTypeResourceLimit ErrorType = "resource_limit"
	// ErrorTypeIO is a failed read, stat or write.
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeConfig is a malformed bruno.json, .env or bruwatch config.
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// SyncError is a structured error type with context.
type SyncError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Collection  string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Collection != "" {
		parts = append(parts, "collection:"+e.Collection)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context information to the error.
func (e *SyncError) WithContext(key string, value interface{}) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithPath adds file location information.
func (e *SyncError) WithPath(path string) *SyncError {
	e.Path = path
	return e
}

// WithCollection adds the owning collection.
func (e *SyncError) WithCollection(collectionUID string) *SyncError {
	e.Collection = collectionUID
	return e
}

// Common error codes.
const (
	ErrCodeParseFailed      = "ERR_PARSE_FAILED"
	ErrCodeReadFailed       = "ERR_READ_FAILED"
	ErrCodeWriteFailed      = "ERR_WRITE_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeDecryptFailed    = "ERR_DECRYPT_FAILED"
	ErrCodeWatchLimit       = "ERR_WATCH_LIMIT"
	ErrCodeWatchFailed      = "ERR_WATCH_FAILED"
	ErrCodeQueueClosed      = "ERR_QUEUE_CLOSED"
	ErrCodeQueueFull        = "ERR_QUEUE_FULL"
	ErrCodeNotRequestFile   = "ERR_NOT_REQUEST_FILE"
	ErrCodeUnknownCommand   = "ERR_UNKNOWN_COMMAND"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// NewParseError creates a parse error. Parse errors are recoverable: the
// user can fix the file or retry an on-demand load.
func NewParseError(code, message string, cause error) *SyncError {
	return &SyncError{
		Type:        ErrorTypeParse,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SyncError {
	return &SyncError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewSecretError creates a secret decryption error.
func NewSecretError(message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeSecret,
		Code:    ErrCodeDecryptFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewResourceLimitError creates a watch-limit error.
func NewResourceLimitError(message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeResourceLimit,
		Code:    ErrCodeWatchLimit,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Recoverable
	}
	return false
}

// IsType reports whether err is a *SyncError of the given type.
func IsType(err error, t ErrorType) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return IsType(err, ErrorTypeParse)
}

// IsResourceLimit reports whether err signals that the OS refused more
// file watches. inotify reports ENOSPC when max_user_watches is reached and
// EMFILE when max_user_instances or the descriptor limit is reached.
func IsResourceLimit(err error) bool {
	if err == nil {
		return false
	}
	if IsType(err, ErrorTypeResourceLimit) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE)
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at the level its type calls for. It never panics and
// never returns an error: it is the boundary that keeps per-file failures
// from reaching the watch loop.
func (h *ErrorHandler) Handle(ctx context.Context, err error, msg string, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var se *SyncError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, msg, fields...)
		return
	}

	fields = append(fields, "type", string(se.Type), "code", se.Code)
	if se.Path != "" {
		fields = append(fields, "path", se.Path)
	}
	if se.Collection != "" {
		fields = append(fields, "collection", se.Collection)
	}
	keys := make([]string, 0, len(se.Context))
	for k := range se.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, se.Context[k])
	}

	switch se.Type {
	case ErrorTypeParse, ErrorTypeIO, ErrorTypeConfig, ErrorTypeSecret, ErrorTypeValidation:
		h.logger.Warn(ctx, err, msg, fields...)
	default:
		h.logger.Error(ctx, err, msg, fields...)
	}
}
