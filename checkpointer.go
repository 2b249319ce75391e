package callflow

import (
	"context"
)

// Checkpointer defines simple checkpoint interface
type Checkpointer interface {
	// SaveCheckpoint saves the current execution state
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint loads the latest checkpoint for an execution. It returns
	// nil without error when the execution has no checkpoint.
	LoadCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error)

	// DeleteCheckpoint removes checkpoint data for an execution
	DeleteCheckpoint(ctx context.Context, executionID string) error
}

// ExecutionLister is implemented by checkpointers able to enumerate the
// executions they hold.
type ExecutionLister interface {
	ListExecutions(ctx context.Context) ([]*ExecutionSummary, error)
}

// SummarizeCheckpoint builds an ExecutionSummary from a checkpoint.
func SummarizeCheckpoint(checkpoint *Checkpoint) *ExecutionSummary {
	duration := checkpoint.CheckpointAt.Sub(checkpoint.StartTime)
	if !checkpoint.EndTime.IsZero() {
		duration = checkpoint.EndTime.Sub(checkpoint.StartTime)
	}
	return &ExecutionSummary{
		ExecutionID: checkpoint.ExecutionID,
		WorkflowID:  checkpoint.WorkflowID,
		SessionID:   checkpoint.SessionID,
		Status:      checkpoint.Status,
		NodeCount:   len(checkpoint.Visited),
		StartTime:   checkpoint.StartTime,
		EndTime:     checkpoint.EndTime,
		Duration:    duration,
		Error:       checkpoint.Error,
	}
}
