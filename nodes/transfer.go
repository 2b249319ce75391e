package nodes

import (
	"context"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/script"
)

// DefaultTransferMessage is spoken by transfer nodes without a message.
const DefaultTransferMessage = "Please hold while I transfer your call."

// Transfer ends the run with a hand-off to another destination. The call
// layer performs the actual transfer.
type Transfer struct{}

func (t *Transfer) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	cfg := node.Transfer
	if cfg == nil {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "transfer node requires a transfer block"))
	}
	vars := exec.Variables()
	destination := script.Render(cfg.Destination, vars)
	if destination == "" {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "transfer destination is empty"))
	}
	message := cfg.Message
	if message == "" {
		message = DefaultTransferMessage
	}
	return callflow.Transfer(script.Render(message, vars), callflow.TransferInfo{
		Destination: destination,
		Timeout:     cfg.Timeout,
		Fallback:    script.Render(cfg.Fallback, vars),
	})
}
