// Package errors provides structured error handling for crmtap.
//
// Failures are split into two tiers. Operational failures are *Error values
// carrying any type other than ErrorTypeInternal: rejected credentials, remote
// API errors, malformed metadata, bad configuration. They are expected in
// production and end the process with exit code 1. Everything else is
// unclassified and is allowed to propagate as a fault.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeAuthentication represents rejected or missing credentials
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConnection represents transport errors talking to the remote API
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeRateLimit represents remote quota exhaustion
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeAPI represents error responses returned by the remote API
	ErrorTypeAPI ErrorType = "api"
	// ErrorTypeMetadata represents malformed object or field metadata
	ErrorTypeMetadata ErrorType = "metadata"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents records that cannot be coerced to their schema
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents catalog, state or journal file errors
	ErrorTypeFile ErrorType = "file"
)

// Tier is the coarse failure classification used by the CLI to pick an exit path.
type Tier int

const (
	// TierUnclassified covers programming defects and unexpected faults.
	TierUnclassified Tier = iota
	// TierOperational covers expected production failures.
	TierOperational
)

func (t Tier) String() string {
	if t == TierOperational {
		return "operational"
	}
	return "unclassified"
}

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// StackTrace renders the captured stack as "function file:line" lines,
// innermost frame first.
func (e *Error) StackTrace() []string {
	out := make([]string, 0, len(e.Stack))
	for _, f := range e.Stack {
		out = append(out, fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line))
	}
	return out
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// fallback when there is none.
func TypeOf(err error, fallback ErrorType) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return fallback
}

// Classify returns the failure tier of err. The outermost *Error in the chain
// decides; a chain without one is unclassified.
func Classify(err error) Tier {
	var e *Error
	if !errors.As(err, &e) {
		return TierUnclassified
	}
	if e.Type == ErrorTypeInternal {
		return TierUnclassified
	}
	return TierOperational
}

// IsOperational reports whether err is an expected production failure.
func IsOperational(err error) bool {
	return err != nil && Classify(err) == TierOperational
}

// Is and As re-export the standard library helpers so callers need a single import.
var (
	Is = errors.Is
	As = errors.As
)

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
