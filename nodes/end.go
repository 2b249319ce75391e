package nodes

import (
	"context"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/script"
)

// DefaultFarewell is spoken by end nodes without a message.
const DefaultFarewell = "Thank you for calling. Goodbye."

// End ends the call with a farewell message.
type End struct{}

func (e *End) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	var cfg callflow.EndConfig
	if node.End != nil {
		cfg = *node.End
	}
	message := cfg.Message
	if message == "" {
		message = DefaultFarewell
	}
	result := callflow.End(script.Render(message, exec.Variables()))
	if cfg.Reason != "" {
		result.Metadata = map[string]any{"reason": cfg.Reason}
	}
	return result
}
