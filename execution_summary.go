package callflow

import "time"

// ExecutionSummary provides a summary view of an execution
type ExecutionSummary struct {
	ExecutionID string        `json:"execution_id"`
	WorkflowID  string        `json:"workflow_id"`
	SessionID   string        `json:"session_id,omitempty"`
	Status      string        `json:"status"`
	NodeCount   int           `json:"node_count"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time,omitzero"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}
