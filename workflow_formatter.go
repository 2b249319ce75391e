package callflow

// WorkflowFormatter renders node progress for a terminal. The engine calls
// it around every node it executes.
type WorkflowFormatter interface {
	PrintNodeStart(nodeID string, kind NodeKind)
	PrintNodeOutput(nodeID string, result *NodeResult)
	PrintNodeError(nodeID string, err error)
}
