package callflow

import (
	"context"
	"fmt"
)

// NodeExecutor performs the step of one node kind. Failures are reported as
// error results, never as panics or Go errors, so the engine is the single
// place where they are interpreted.
type NodeExecutor interface {
	Execute(ctx context.Context, node *Node, exec *ExecutionContext) *NodeResult
}

// NodeExecutorFunc adapts a function to the NodeExecutor interface.
type NodeExecutorFunc func(ctx context.Context, node *Node, exec *ExecutionContext) *NodeResult

func (f NodeExecutorFunc) Execute(ctx context.Context, node *Node, exec *ExecutionContext) *NodeResult {
	return f(ctx, node, exec)
}

// ExecutorRegistry maps each node kind to its executor.
type ExecutorRegistry map[NodeKind]NodeExecutor

// Validate checks that every node of the workflow has an executor.
func (r ExecutorRegistry) Validate(wf *Workflow) error {
	for _, node := range wf.Nodes() {
		if _, ok := r[node.Kind]; !ok {
			return fmt.Errorf("no executor registered for node kind %q (node %q)", node.Kind, node.ID)
		}
	}
	return nil
}
