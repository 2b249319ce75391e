package callflow

import "time"

// Checkpoint contains a complete snapshot of execution state. A checkpoint is
// saved after every node so an interrupted run can be inspected or restored.
type Checkpoint struct {
	ID           string                 `json:"id"`
	ExecutionID  string                 `json:"execution_id"`
	WorkflowID   string                 `json:"workflow_id"`
	SessionID    string                 `json:"session_id,omitempty"`
	Status       string                 `json:"status"`
	Variables    map[string]any         `json:"variables"`
	Visited      []string               `json:"visited"`
	Results      map[string]*NodeResult `json:"results,omitempty"`
	Next         string                 `json:"next,omitempty"`
	Error        string                 `json:"error,omitempty"`
	StartTime    time.Time              `json:"start_time,omitzero"`
	EndTime      time.Time              `json:"end_time,omitzero"`
	CheckpointAt time.Time              `json:"checkpoint_at"`
}
