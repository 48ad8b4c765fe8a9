// Package errors provides structured error handling for the bundler.
// Errors carry a code, key/value context and a short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeInvalidFormat    Code = "E103"
	CodeInvalidTimestamp Code = "E105"
	CodeSourceFailed     Code = "E107"

	// Processing errors (2xx)
	CodeParseFailed      Code = "E201"
	CodeValidationFailed Code = "E203"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodePanic           Code = "E403"

	// DuckDB errors (5xx)
	CodeDuckDBQuery Code = "E502"

	// Bundling errors (6xx)
	CodeInvalidBatchCount Code = "E601"
	CodeEmptyGroup        Code = "E602"
	CodeUnsortedGroup     Code = "E603"
	CodeGroupFailed       Code = "E604"

	// Unknown
	CodeUnknown Code = "E999"
)

// BundlerError is the base error type for all bundler errors.
type BundlerError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
// Context keys are rendered in sorted order so messages are stable.
func (e *BundlerError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *BundlerError) Unwrap() error {
	return e.Cause
}

// Is matches another BundlerError with the same code.
func (e *BundlerError) Is(target error) bool {
	if t, ok := target.(*BundlerError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *BundlerError) WithContext(key string, value interface{}) *BundlerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new BundlerError.
func New(code Code, message string) *BundlerError {
	return &BundlerError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, message string) *BundlerError {
	if err == nil {
		return nil
	}

	return &BundlerError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *BundlerError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *BundlerError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *BundlerError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string, row int64) *BundlerError {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value).
		WithContext("row", row)
}

// ParseError creates a parsing error with location.
func ParseError(format string, row int64, err error) *BundlerError {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("row", row)
}

// GroupFailed attaches the grouping key to a per-group failure.
func GroupFailed(key string, err error) *BundlerError {
	return Wrap(err, CodeGroupFailed, "group failed").WithContext("group", key)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *BundlerError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode reports whether any error in err's chain has the given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		var bErr *BundlerError
		if !errors.As(err, &bErr) {
			return false
		}
		if bErr.Code == code {
			return true
		}
		err = bErr.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error.
func GetCode(err error) Code {
	var bErr *BundlerError
	if errors.As(err, &bErr) {
		return bErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true for internal-consistency failures that should never be skipped.
func IsFatal(err error) bool {
	return IsCode(err, CodePanic) || IsCode(err, CodeInvalidBatchCount)
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
