package callflow

import (
	"context"
	"time"
)

// NodeLogEntry records one completed node execution.
type NodeLogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	NodeID      string         `json:"node_id"`
	NodeKind    NodeKind       `json:"node_kind"`
	ResultKind  ResultKind     `json:"result_kind"`
	Response    string         `json:"response,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
	Deleted     []string       `json:"deleted,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	Duration    float64        `json:"duration"`
}

// NodeLogger defines simple node logging interface
type NodeLogger interface {
	// LogNode logs a completed node execution
	LogNode(ctx context.Context, entry *NodeLogEntry) error

	// GetNodeHistory retrieves the node log for an execution
	GetNodeHistory(ctx context.Context, executionID string) ([]*NodeLogEntry, error)
}

// NullNodeLogger is a no-op implementation of NodeLogger.
type NullNodeLogger struct{}

func NewNullNodeLogger() *NullNodeLogger {
	return &NullNodeLogger{}
}

func (l *NullNodeLogger) LogNode(ctx context.Context, entry *NodeLogEntry) error {
	return nil
}

func (l *NullNodeLogger) GetNodeHistory(ctx context.Context, executionID string) ([]*NodeLogEntry, error) {
	return nil, nil
}
