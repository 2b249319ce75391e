// Package nodes implements the executor of every workflow node kind.
package nodes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/condition"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/script"
	"github.com/deepnoodle-ai/callflow/tools"
)

// DefaultExternalRequestTimeout bounds external requests without a timeout.
const DefaultExternalRequestTimeout = 10 * time.Second

// DefaultHistoryLimit is the number of recent session messages sent to the
// provider by conversation nodes.
const DefaultHistoryLimit = 10

// Options configures the node executors.
type Options struct {
	// Provider generates conversation replies and evaluates AI conditions.
	Provider llm.Provider

	// Agent is the base configuration of conversation nodes.
	Agent llm.AgentConfig

	// Tools resolves tool ids for tool nodes.
	Tools tools.Registry

	// HTTPClient issues external requests. Defaults to a new client.
	HTTPClient *http.Client

	// Compiler evaluates logical conditions.
	Compiler script.Compiler

	// Conditions overrides the evaluator built from Provider and Compiler.
	Conditions *condition.Evaluator

	ExternalRequestTimeout time.Duration
	HistoryLimit           int
	Logger                 *slog.Logger
}

// NewRegistry returns an executor registry covering every node kind.
func NewRegistry(opts Options) callflow.ExecutorRegistry {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Compiler == nil {
		opts.Compiler = script.NewExprEngine(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Conditions == nil {
		opts.Conditions = condition.New(condition.Options{
			Provider: opts.Provider,
			Compiler: opts.Compiler,
			Logger:   opts.Logger,
			Agent:    llm.AgentConfig{Model: opts.Agent.Model},
		})
	}
	if opts.ExternalRequestTimeout <= 0 {
		opts.ExternalRequestTimeout = DefaultExternalRequestTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return callflow.ExecutorRegistry{
		callflow.NodeKindStart:           &Start{},
		callflow.NodeKindConversation:    &Conversation{provider: opts.Provider, agent: opts.Agent, historyLimit: opts.HistoryLimit},
		callflow.NodeKindExternalRequest: &ExternalRequest{client: opts.HTTPClient, timeout: opts.ExternalRequestTimeout},
		callflow.NodeKindTool:            &Tool{tools: opts.Tools},
		callflow.NodeKindTransfer:        &Transfer{},
		callflow.NodeKindEnd:             &End{},
		callflow.NodeKindCondition:       &Condition{evaluator: opts.Conditions},
	}
}
