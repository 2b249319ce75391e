package callflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error except fatal errors
	ErrorTypeAll = "all"

	// ErrorTypeDefinitionNotFound indicates an unknown workflow, squad or agent id.
	ErrorTypeDefinitionNotFound = "definition_not_found"

	// ErrorTypeLoopDetected indicates a node was revisited within one run.
	ErrorTypeLoopDetected = "loop_detected"

	// ErrorTypeNodeExecutionFailed is the default classification of a node
	// executor's internal failure.
	ErrorTypeNodeExecutionFailed = "node_execution_failed"

	// ErrorTypeProviderFailure indicates the text-generation provider or a
	// tool call failed.
	ErrorTypeProviderFailure = "provider_failure"

	// ErrorTypeExternalRequestFailed indicates an outbound HTTP call failed.
	ErrorTypeExternalRequestFailed = "external_request_failed"

	// ErrorTypeInvalidConfiguration indicates a node is missing the
	// configuration block its kind requires.
	ErrorTypeInvalidConfiguration = "invalid_configuration"

	// ErrorTypeExecutionStopped indicates the execution was stopped by a caller.
	ErrorTypeExecutionStopped = "execution_stopped"

	// ErrorTypeExecutionNotFound indicates an unknown execution id.
	ErrorTypeExecutionNotFound = "execution_not_found"

	// ErrorTypeTimeout matches a timeout context canceled error
	ErrorTypeTimeout = "timeout"

	// ErrorTypeFatal indicates a failure that must never be continued past.
	ErrorTypeFatal = "fatal_error"
)

// Sentinel errors usable with errors.Is. A WorkflowError matches a sentinel
// when their types are equal.
var (
	ErrDefinitionNotFound   = &WorkflowError{Type: ErrorTypeDefinitionNotFound}
	ErrLoopDetected         = &WorkflowError{Type: ErrorTypeLoopDetected}
	ErrInvalidConfiguration = &WorkflowError{Type: ErrorTypeInvalidConfiguration}
	ErrExecutionStopped     = &WorkflowError{Type: ErrorTypeExecutionStopped}
	ErrExecutionNotFound    = &WorkflowError{Type: ErrorTypeExecutionNotFound}
	ErrProviderFailure      = &WorkflowError{Type: ErrorTypeProviderFailure}
)

// WorkflowError represents a structured error with classification
// It supports Go's error wrapping patterns with Unwrap() method
type WorkflowError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	NodeID  string `json:"node_id,omitempty"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"` // Original error being wrapped
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Cause == "" {
		return e.Type
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Type, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *WorkflowError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a sentinel WorkflowError of the same type.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return t.Cause == "" && t.Type == e.Type
}

// NewWorkflowError creates a new WorkflowError with the specified type and cause.
// The type can be any user-defined string e.g. "network-error". The important
// thing is that it may be used to match against error types in policies.
func NewWorkflowError(errorType, cause string) *WorkflowError {
	return &WorkflowError{
		Type:  errorType,
		Cause: cause,
	}
}

// WrapError wraps err in a WorkflowError of the given type.
func WrapError(errorType string, err error) *WorkflowError {
	return &WorkflowError{
		Type:    errorType,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// NewDefinitionNotFound returns a definition_not_found error for the given
// kind of definition ("workflow", "squad", "agent") and id.
func NewDefinitionNotFound(kind, id string) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeDefinitionNotFound,
		Cause:   fmt.Sprintf("%s %q not found", kind, id),
		Details: map[string]string{"kind": kind, "id": id},
	}
}

// NewInvalidConfiguration returns an invalid_configuration error for a node
// missing its configuration block.
func NewInvalidConfiguration(node *Node, cause string) *WorkflowError {
	return &WorkflowError{
		Type:   ErrorTypeInvalidConfiguration,
		Cause:  cause,
		NodeID: node.ID,
	}
}

// ClassifyError attempts to classify a regular error into a WorkflowError
func ClassifyError(err error) *WorkflowError {
	// If the error is already a WorkflowError, return it
	var workflowError *WorkflowError
	if errors.As(err, &workflowError) {
		return workflowError
	}
	// Check for timeout patterns
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &WorkflowError{
			Type:    ErrorTypeTimeout,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Default to a node execution failure
	return &WorkflowError{
		Type:    ErrorTypeNodeExecutionFailed,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	wErr := ClassifyError(err)
	// Fatal errors are only matched by the ErrorTypeFatal pattern
	if wErr.Type == ErrorTypeFatal {
		return errorType == ErrorTypeFatal
	}
	switch errorType {
	case ErrorTypeAll:
		return true
	default:
		return wErr.Type == errorType
	}
}

// continuable reports whether the error-handling policy may move past err.
// Loop detection and fatal errors always terminate the run.
func continuable(err *WorkflowError) bool {
	if err == nil {
		return true
	}
	switch err.Type {
	case ErrorTypeLoopDetected, ErrorTypeFatal, ErrorTypeExecutionStopped:
		return false
	}
	return true
}
