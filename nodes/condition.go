package nodes

import (
	"context"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/condition"
)

// Condition evaluates its conditions in order and reports the first match.
type Condition struct {
	evaluator *condition.Evaluator
}

func (c *Condition) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	cfg := node.Condition
	if cfg == nil || len(cfg.Conditions) == 0 {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "condition node requires at least one condition"))
	}
	vars := exec.Variables()
	utterance := exec.Session().LastUserMessage()
	if utterance == "" {
		if s, ok := vars["utterance"].(string); ok {
			utterance = s
		}
	}
	index := c.evaluator.First(ctx, cfg.Conditions, condition.Input{Utterance: utterance, Variables: vars})
	if index < 0 {
		callflow.LoggerFromContext(ctx).Debug("no condition matched")
		return callflow.ConditionResult(callflow.ConditionMatch{Index: -1})
	}
	matched := cfg.Conditions[index]
	return callflow.ConditionResult(callflow.ConditionMatch{
		Matched:     true,
		Index:       index,
		ID:          matched.ID,
		Description: matched.Description,
	})
}
