// Package errors provides structured error types for stackctl.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeParse           ErrorCode = "PARSE_ERROR"
	ErrCodeResolution      ErrorCode = "RESOLUTION_ERROR"
	ErrCodeCycle           ErrorCode = "CYCLE_ERROR"
	ErrCodeProvider        ErrorCode = "PROVIDER_ERROR"
	ErrCodeExportCollision ErrorCode = "EXPORT_COLLISION"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeLocked          ErrorCode = "STATE_LOCKED"
	ErrCodeBackend         ErrorCode = "BACKEND_ERROR"
)

// ResolutionReason narrows a RESOLUTION_ERROR to the specific failure mode.
type ResolutionReason string

const (
	ReasonUnknownParameter   ResolutionReason = "unknown-parameter"
	ReasonNotYetResolved     ResolutionReason = "not-yet-resolved"
	ReasonUnknownPlaceholder ResolutionReason = "unknown-placeholder"
	ReasonUnknownExport      ResolutionReason = "unknown-export"
	ReasonAmbiguousExport    ResolutionReason = "ambiguous-export"
)

// Error is the base error type for stackctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// ParseError creates a parse error pinpointing the offending document path.
func ParseError(reason, path string) *Error {
	msg := reason
	if path != "" {
		msg = fmt.Sprintf("%s (at %s)", reason, path)
	}
	return &Error{
		Code:    ErrCodeParse,
		Message: msg,
		Details: map[string]interface{}{
			"reason": reason,
			"path":   path,
		},
	}
}

// ResolutionError creates an expression resolution error.
func ResolutionError(reason ResolutionReason, message string) *Error {
	return &Error{
		Code:    ErrCodeResolution,
		Message: message,
		Details: map[string]interface{}{
			"reason": string(reason),
		},
	}
}

// Reason extracts the resolution reason from an error, or "" if the error
// is not a resolution error.
func Reason(err error) ResolutionReason {
	if e, ok := err.(*Error); ok && e.Code == ErrCodeResolution {
		if r, ok := e.Details["reason"].(string); ok {
			return ResolutionReason(r)
		}
	}
	return ""
}

// CycleError creates a dependency cycle error naming one concrete cycle.
// The cycle is an ordered sequence of logical names; the last element
// depends on the first.
func CycleError(cycle []string) *Error {
	return &Error{
		Code:    ErrCodeCycle,
		Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		Details: map[string]interface{}{
			"cycle": cycle,
		},
	}
}

// Cycle extracts the cycle from a cycle error, or nil for any other error.
func Cycle(err error) []string {
	if e, ok := err.(*Error); ok && e.Code == ErrCodeCycle {
		if c, ok := e.Details["cycle"].([]string); ok {
			return c
		}
	}
	return nil
}

// ProviderError wraps a failure reported by a resource provider.
func ProviderError(kind, logicalName string, cause error) *Error {
	return &Error{
		Code:    ErrCodeProvider,
		Message: fmt.Sprintf("provider for kind %q failed on resource %q", kind, logicalName),
		Cause:   cause,
		Details: map[string]interface{}{
			"kind":     kind,
			"resource": logicalName,
		},
	}
}

// ExportCollision creates an error for publishing an export key already
// owned by a different stack.
func ExportCollision(key, ownerStack string) *Error {
	return &Error{
		Code:    ErrCodeExportCollision,
		Message: fmt.Sprintf("export key %q is already published by stack %q", key, ownerStack),
		Details: map[string]interface{}{
			"export_key": key,
			"owner":      ownerStack,
		},
	}
}

// LockInfo contains metadata about a lock
type LockInfo struct {
	ID        string
	Path      string
	Who       string
	Operation string
	Created   time.Time
}

// StateLocked creates a state locked error
func StateLocked(lockInfo LockInfo) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Message: "state is locked",
		Details: map[string]interface{}{
			"lock_id":   lockInfo.ID,
			"locked_by": lockInfo.Who,
			"operation": lockInfo.Operation,
			"created":   lockInfo.Created,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
