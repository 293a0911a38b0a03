package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeSource covers unparseable sources, unresolved references
	// and dependency cycles. It is isolated to the entity.
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeTransform covers failures inside a render or finishing stage.
	ErrorTypeTransform ErrorType = "transform"
	// ErrorTypeCacheConsistency means a cache key resolved to an entry of a
	// different shape. Always fatal.
	ErrorTypeCacheConsistency ErrorType = "cache_consistency"
	ErrorTypeIO               ErrorType = "io"
	ErrorTypeConfig           ErrorType = "config"
	ErrorTypeInternal         ErrorType = "internal"
)

// SlateError is a structured error type with context.
type SlateError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Entity  string
	Path    string
	Line    int
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *SlateError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	switch {
	case e.Path != "" && e.Line > 0:
		parts = append(parts, fmt.Sprintf("%s:%d", e.Path, e.Line))
	case e.Path != "":
		parts = append(parts, e.Path)
	case e.Entity != "":
		parts = append(parts, e.Entity)
	}

	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SlateError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SlateError) Is(target error) bool {
	var t *SlateError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithContext adds context information to the error.
func (e *SlateError) WithContext(key string, value interface{}) *SlateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithEntity records the entity the error belongs to.
func (e *SlateError) WithEntity(id string) *SlateError {
	e.Entity = id

	return e
}

// WithLocation adds file location information.
func (e *SlateError) WithLocation(path string, line int) *SlateError {
	e.Path = path
	e.Line = line

	return e
}

// Sentinels usable with errors.Is to match a whole category.
var (
	ErrSource           = &SlateError{Type: ErrorTypeSource}
	ErrTransform        = &SlateError{Type: ErrorTypeTransform}
	ErrCacheConsistency = &SlateError{Type: ErrorTypeCacheConsistency}
	ErrIO               = &SlateError{Type: ErrorTypeIO}
	ErrConfig           = &SlateError{Type: ErrorTypeConfig}
)

// NewSourceError creates a source error.
func NewSourceError(code, message string, cause error) *SlateError {
	return &SlateError{Type: ErrorTypeSource, Code: code, Message: message, Cause: cause}
}

// NewTransformError creates a transform error.
func NewTransformError(code, message string, cause error) *SlateError {
	return &SlateError{Type: ErrorTypeTransform, Code: code, Message: message, Cause: cause}
}

// NewCacheConsistencyError creates a cache consistency error.
func NewCacheConsistencyError(code, message string) *SlateError {
	return &SlateError{Type: ErrorTypeCacheConsistency, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SlateError {
	return &SlateError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SlateError {
	return &SlateError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SlateError {
	return &SlateError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// TypeOf returns the category of err, or ErrorTypeInternal when err is
// not a SlateError.
func TypeOf(err error) ErrorType {
	var se *SlateError
	if errors.As(err, &se) {
		return se.Type
	}

	return ErrorTypeInternal
}

// IsFatal reports whether err must abort the build cycle.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeCacheConsistency, ErrorTypeIO, ErrorTypeConfig:
		return true
	}

	return false
}

// IsSourceError checks if an error is a source error.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrSource)
}

// IsTransformError checks if an error is a transform error.
func IsTransformError(err error) bool {
	return errors.Is(err, ErrTransform)
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}
