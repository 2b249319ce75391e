package nodes

import (
	"context"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/script"
)

// Start seeds the declared variable defaults and speaks the greeting.
// Variables already bound, for example by the caller, keep their values.
type Start struct{}

func (s *Start) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	seeded := map[string]any{}
	for name, value := range exec.Workflow().Defaults() {
		if _, exists := exec.GetVariable(name); !exists {
			seeded[name] = value
		}
	}
	vars := exec.Variables()
	for name, value := range seeded {
		vars[name] = value
	}
	var greeting string
	if node.Start != nil {
		greeting = node.Start.Greeting
	}
	return callflow.Continue(script.Render(greeting, vars), seeded)
}
