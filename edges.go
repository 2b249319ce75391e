package callflow

import (
	"context"
	"log/slog"

	"github.com/deepnoodle-ai/callflow/script"
)

// edgeVariables returns the bindings edge expressions are evaluated against:
// context variables overlaid with the node result's variables.
func edgeVariables(exec *ExecutionContext, result *NodeResult) map[string]any {
	vars := exec.Variables()
	if result != nil {
		for k, v := range result.Variables {
			vars[k] = v
		}
	}
	return vars
}

// edgeMatches evaluates the condition of a conditional edge. Evaluation
// errors count as no match.
func edgeMatches(ctx context.Context, compiler script.Compiler, logger *slog.Logger, edge *Edge, vars map[string]any) bool {
	ok, err := script.EvaluateCondition(ctx, compiler, edge.Condition.Expression, vars)
	if err != nil {
		logger.Warn("edge condition evaluation failed",
			"from", edge.From,
			"to", edge.To,
			"expression", edge.Condition.Expression,
			"error", err)
		return false
	}
	return ok
}

// resolveEdge returns the target of the first outgoing edge whose condition
// holds. Unconditional edges always hold.
func resolveEdge(ctx context.Context, compiler script.Compiler, logger *slog.Logger, wf *Workflow, nodeID string, vars map[string]any) *Edge {
	for _, edge := range wf.Outgoing(nodeID) {
		if edge.IsDefault() || edgeMatches(ctx, compiler, logger, edge, vars) {
			return edge
		}
	}
	return nil
}

// resolveConditionEdge prefers the first conditional edge whose expression
// holds and falls back to the first unconditional edge.
func resolveConditionEdge(ctx context.Context, compiler script.Compiler, logger *slog.Logger, wf *Workflow, nodeID string, vars map[string]any) *Edge {
	var fallback *Edge
	for _, edge := range wf.Outgoing(nodeID) {
		if edge.IsDefault() {
			if fallback == nil {
				fallback = edge
			}
			continue
		}
		if edgeMatches(ctx, compiler, logger, edge, vars) {
			return edge
		}
	}
	return fallback
}
