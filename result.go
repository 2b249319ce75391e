package callflow

// ResultKind tags the outcome of a node execution.
type ResultKind string

const (
	ResultContinue  ResultKind = "continue"
	ResultEnd       ResultKind = "end"
	ResultTransfer  ResultKind = "transfer"
	ResultCondition ResultKind = "condition"
	ResultError     ResultKind = "error"
)

// TransferInfo carries the destination of a transfer result.
type TransferInfo struct {
	Destination string  `json:"destination"`
	Timeout     float64 `json:"timeout,omitempty"`
	Fallback    string  `json:"fallback,omitempty"`
}

// ConditionMatch records which condition of a condition node matched.
// Index is -1 when no condition matched.
type ConditionMatch struct {
	Matched     bool   `json:"matched"`
	Index       int    `json:"index"`
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
}

// NodeResult is the immutable value returned by a node executor.
type NodeResult struct {
	Kind      ResultKind      `json:"kind"`
	Response  string          `json:"response,omitempty"`
	Variables map[string]any  `json:"variables,omitempty"`
	Transfer  *TransferInfo   `json:"transfer,omitempty"`
	Condition *ConditionMatch `json:"condition,omitempty"`
	Error     *WorkflowError  `json:"error,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Continue returns a continue result.
func Continue(response string, variables map[string]any) *NodeResult {
	return &NodeResult{Kind: ResultContinue, Response: response, Variables: variables}
}

// End returns an end result carrying a farewell message.
func End(message string) *NodeResult {
	return &NodeResult{Kind: ResultEnd, Response: message}
}

// Transfer returns a transfer result carrying a spoken hand-off message.
func Transfer(message string, info TransferInfo) *NodeResult {
	return &NodeResult{Kind: ResultTransfer, Response: message, Transfer: &info}
}

// ConditionResult returns a condition result. The match is also exposed as
// result variables so that edge expressions can branch on it.
func ConditionResult(match ConditionMatch) *NodeResult {
	return &NodeResult{
		Kind:      ResultCondition,
		Condition: &match,
		Variables: map[string]any{
			"condition_matched": match.Matched,
			"condition_index":   match.Index,
			"condition_id":      match.ID,
		},
	}
}

// Failure returns an error result.
func Failure(err *WorkflowError) *NodeResult {
	return &NodeResult{Kind: ResultError, Error: err}
}

// IsTerminal reports whether the result ends a workflow run regardless of
// outgoing edges.
func (r *NodeResult) IsTerminal() bool {
	return r.Kind == ResultEnd || r.Kind == ResultTransfer
}
