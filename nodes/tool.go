package nodes

import (
	"context"
	"errors"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/script"
	"github.com/deepnoodle-ai/callflow/tools"
)

// Tool invokes a registered tool. A parameter consisting of a single
// {{variable}} placeholder receives the variable's value with its type
// intact; other strings are rendered as text.
type Tool struct {
	tools tools.Registry
}

func (t *Tool) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	cfg := node.Tool
	if cfg == nil || cfg.ToolID == "" {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "tool node requires a tool block with a tool_id"))
	}
	if t.tools == nil {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "no tool registry is configured"))
	}
	vars := exec.Variables()
	params, _ := resolveParam(cfg.Parameters, vars).(map[string]any)

	out, err := t.tools.Invoke(ctx, cfg.ToolID, params, vars)
	if err != nil {
		var wErr *callflow.WorkflowError
		if errors.Is(err, tools.ErrToolNotFound) {
			wErr = callflow.NewDefinitionNotFound("tool", cfg.ToolID)
			wErr.Wrapped = err
		} else {
			wErr = callflow.WrapError(callflow.ErrorTypeProviderFailure, err)
		}
		wErr.NodeID = node.ID
		return callflow.Failure(wErr)
	}
	if out == nil {
		out = &tools.Result{}
	}
	variables := out.Variables
	if cfg.Store != "" {
		variables = map[string]any{cfg.Store: out.Variables}
	}
	result := callflow.Continue("", variables)
	result.Metadata = out.Metadata
	return result
}

func resolveParam(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		if name, ok := script.SinglePlaceholder(v); ok {
			return script.Lookup(vars, name)
		}
		return script.Render(v, vars)
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, item := range v {
			resolved[key] = resolveParam(item, vars)
		}
		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = resolveParam(item, vars)
		}
		return resolved
	default:
		return v
	}
}
