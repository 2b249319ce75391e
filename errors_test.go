package callflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkflowErrorWrapping(t *testing.T) {
	err := NewWorkflowError(ErrorTypeTimeout, "operation timed out")
	require.Equal(t, "timeout: operation timed out", err.Error())
	require.Nil(t, err.Unwrap())

	originalErr := errors.New("network connection failed")
	wrappedErr := WrapError(ErrorTypeExternalRequestFailed, originalErr)
	wrappedErr.NodeID = "lookup"

	require.Equal(t, "external_request_failed: node lookup: network connection failed", wrappedErr.Error())
	require.Equal(t, originalErr, wrappedErr.Unwrap())
	require.True(t, errors.Is(wrappedErr, originalErr))

	var wErr *WorkflowError
	require.True(t, errors.As(wrappedErr, &wErr))
	require.Equal(t, ErrorTypeExternalRequestFailed, wErr.Type)
}

func TestWorkflowErrorSentinels(t *testing.T) {
	notFound := NewDefinitionNotFound("squad", "support")
	require.True(t, errors.Is(notFound, ErrDefinitionNotFound))
	require.False(t, errors.Is(notFound, ErrLoopDetected))
	require.Equal(t, `definition_not_found: squad "support" not found`, notFound.Error())
	require.Equal(t, map[string]string{"kind": "squad", "id": "support"}, notFound.Details)

	invalid := NewInvalidConfiguration(&Node{ID: "talk"}, "missing block")
	require.ErrorIs(t, invalid, ErrInvalidConfiguration)
	require.Equal(t, "talk", invalid.NodeID)

	// A sentinel only matches errors of its type, never a specific cause.
	require.False(t, errors.Is(ErrLoopDetected, NewWorkflowError(ErrorTypeLoopDetected, "node x")))
}

func TestErrorClassification(t *testing.T) {
	classified := ClassifyError(context.DeadlineExceeded)
	require.Equal(t, ErrorTypeTimeout, classified.Type)
	require.True(t, errors.Is(classified, context.DeadlineExceeded))

	genericErr := errors.New("something went wrong")
	classified = ClassifyError(genericErr)
	require.Equal(t, ErrorTypeNodeExecutionFailed, classified.Type)
	require.True(t, errors.Is(classified, genericErr))

	original := NewWorkflowError(ErrorTypeFatal, "runtime error")
	require.Equal(t, original, ClassifyError(original))
}

func TestErrorMatching(t *testing.T) {
	timeoutErr := NewWorkflowError(ErrorTypeTimeout, "timeout")
	nodeErr := NewWorkflowError(ErrorTypeNodeExecutionFailed, "node failed")
	fatalErr := NewWorkflowError(ErrorTypeFatal, "fatal error")

	require.True(t, MatchesErrorType(timeoutErr, ErrorTypeTimeout))
	require.False(t, MatchesErrorType(timeoutErr, ErrorTypeNodeExecutionFailed))

	require.True(t, MatchesErrorType(timeoutErr, ErrorTypeAll))
	require.True(t, MatchesErrorType(nodeErr, ErrorTypeAll))
	require.False(t, MatchesErrorType(fatalErr, ErrorTypeAll), "fatal error should not match ErrorTypeAll")
	require.True(t, MatchesErrorType(fatalErr, ErrorTypeFatal))
}

func TestContinuable(t *testing.T) {
	tests := []struct {
		errorType string
		want      bool
	}{
		{ErrorTypeProviderFailure, true},
		{ErrorTypeExternalRequestFailed, true},
		{ErrorTypeInvalidConfiguration, true},
		{ErrorTypeLoopDetected, false},
		{ErrorTypeFatal, false},
		{ErrorTypeExecutionStopped, false},
	}
	for _, tt := range tests {
		t.Run(tt.errorType, func(t *testing.T) {
			require.Equal(t, tt.want, continuable(NewWorkflowError(tt.errorType, "x")))
		})
	}
	require.True(t, continuable(nil))
}
