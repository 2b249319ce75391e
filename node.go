package callflow

// NodeKind identifies the kind of step a node performs.
type NodeKind string

const (
	NodeKindStart           NodeKind = "start"
	NodeKindConversation    NodeKind = "conversation"
	NodeKindExternalRequest NodeKind = "external_request"
	NodeKindTool            NodeKind = "tool"
	NodeKindTransfer        NodeKind = "transfer"
	NodeKindEnd             NodeKind = "end"
	NodeKindCondition       NodeKind = "condition"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindStart, NodeKindConversation, NodeKindExternalRequest,
		NodeKindTool, NodeKindTransfer, NodeKindEnd, NodeKindCondition:
		return true
	}
	return false
}

// Node is a single typed step in a workflow. Exactly one configuration block,
// the one matching Kind, is read by the executor for that kind.
type Node struct {
	ID              string                 `json:"id" yaml:"id"`
	Kind            NodeKind               `json:"kind" yaml:"kind"`
	Description     string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Start           *StartConfig           `json:"start,omitempty" yaml:"start,omitempty"`
	Conversation    *ConversationConfig    `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	ExternalRequest *ExternalRequestConfig `json:"external_request,omitempty" yaml:"external_request,omitempty"`
	Tool            *ToolConfig            `json:"tool,omitempty" yaml:"tool,omitempty"`
	Transfer        *TransferConfig        `json:"transfer,omitempty" yaml:"transfer,omitempty"`
	End             *EndConfig             `json:"end,omitempty" yaml:"end,omitempty"`
	Condition       *ConditionConfig       `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// StartConfig configures a start node.
type StartConfig struct {
	Greeting string `json:"greeting,omitempty" yaml:"greeting,omitempty"`
}

// ExtractRule extracts a variable from a generated reply with a regular
// expression. Group selects the capture group; zero means the whole match.
type ExtractRule struct {
	Variable string `json:"variable" yaml:"variable"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Group    int    `json:"group,omitempty" yaml:"group,omitempty"`
}

// ExtractVariable names a variable the text-generation provider is asked to
// extract from the conversation.
type ExtractVariable struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ConversationConfig configures a conversation node.
type ConversationConfig struct {
	Prompt       string             `json:"prompt" yaml:"prompt"`
	SystemPrompt string             `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Model        string             `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64           `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Extract      []*ExtractRule     `json:"extract,omitempty" yaml:"extract,omitempty"`
	ExtractAI    []*ExtractVariable `json:"extract_ai,omitempty" yaml:"extract_ai,omitempty"`
}

// RequestErrorHandling is the per-node error policy of an external request.
type RequestErrorHandling string

const (
	RequestErrorFail   RequestErrorHandling = "fail"
	RequestErrorIgnore RequestErrorHandling = "ignore"
)

// ExternalRequestConfig configures an external request node. URL, Headers
// and Body may contain {{variable}} placeholders.
type ExternalRequestConfig struct {
	Method          string               `json:"method,omitempty" yaml:"method,omitempty"`
	URL             string               `json:"url" yaml:"url"`
	Headers         map[string]string    `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body            string               `json:"body,omitempty" yaml:"body,omitempty"`
	Timeout         float64              `json:"timeout,omitempty" yaml:"timeout,omitempty"` // in seconds, default 10
	ResponseMapping map[string]string    `json:"response_mapping,omitempty" yaml:"response_mapping,omitempty"`
	ErrorHandling   RequestErrorHandling `json:"error_handling,omitempty" yaml:"error_handling,omitempty"`
	DegradedMessage string               `json:"degraded_message,omitempty" yaml:"degraded_message,omitempty"`
}

// ToolConfig configures a tool invocation node.
type ToolConfig struct {
	ToolID     string         `json:"tool_id" yaml:"tool_id"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Store      string         `json:"store,omitempty" yaml:"store,omitempty"`
}

// TransferConfig configures a call transfer node.
type TransferConfig struct {
	Destination string  `json:"destination" yaml:"destination"`
	Timeout     float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"` // in seconds
	Fallback    string  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Message     string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// EndConfig configures an end-of-call node.
type EndConfig struct {
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ConditionConfig configures a condition node.
type ConditionConfig struct {
	Conditions []*NodeCondition `json:"conditions" yaml:"conditions"`
}

// ConditionKind is the evaluation strategy of a NodeCondition.
type ConditionKind string

const (
	// ConditionAI asks the text-generation provider whether a natural
	// language predicate holds.
	ConditionAI ConditionKind = "ai"

	// ConditionLogical evaluates a boolean expression over variables.
	ConditionLogical ConditionKind = "logical"

	// ConditionCombined is the conjunction of an AI and a logical evaluation.
	ConditionCombined ConditionKind = "combined"
)

// NodeCondition is a condition evaluated by condition nodes and squad
// routing rules. Expression holds the boolean expression for logical
// conditions and the natural language predicate for AI conditions. Combined
// conditions evaluate Prompt (or Description when Prompt is empty) with the
// provider and Expression with the expression evaluator.
type NodeCondition struct {
	ID          string        `json:"id,omitempty" yaml:"id,omitempty"`
	Kind        ConditionKind `json:"kind" yaml:"kind"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Expression  string        `json:"expression" yaml:"expression"`
	Prompt      string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// EdgeConditionType selects how an edge condition is evaluated.
type EdgeConditionType string

const (
	EdgeAlways      EdgeConditionType = "always"
	EdgeConditional EdgeConditionType = "conditional"
)

// EdgeCondition guards an edge.
type EdgeCondition struct {
	Type       EdgeConditionType `json:"type" yaml:"type"`
	Expression string            `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Edge is a directed connection between two nodes. An edge without a
// condition always matches.
type Edge struct {
	From      string         `json:"from" yaml:"from"`
	To        string         `json:"to" yaml:"to"`
	Label     string         `json:"label,omitempty" yaml:"label,omitempty"`
	Condition *EdgeCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// IsDefault reports whether the edge is unconditional.
func (e *Edge) IsDefault() bool {
	return e.Condition == nil || e.Condition.Type == "" || e.Condition.Type == EdgeAlways
}
