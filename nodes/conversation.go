package nodes

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/script"
	"github.com/tidwall/gjson"
)

// LastResponseVariable holds the most recent reply of a conversation node.
const LastResponseVariable = "last_response"

// Conversation generates the assistant's reply for the current step and
// extracts variables from it.
type Conversation struct {
	provider     llm.Provider
	agent        llm.AgentConfig
	historyLimit int
	patterns     sync.Map // pattern -> *regexp.Regexp
}

func (c *Conversation) Execute(ctx context.Context, node *callflow.Node, exec *callflow.ExecutionContext) *callflow.NodeResult {
	cfg := node.Conversation
	if cfg == nil {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "conversation node requires a conversation block"))
	}
	if c.provider == nil {
		return callflow.Failure(callflow.NewInvalidConfiguration(node, "no text-generation provider is configured"))
	}
	logger := callflow.LoggerFromContext(ctx)
	vars := exec.Variables()
	agent := c.agentFor(cfg, vars)

	messages := llm.LastMessages(exec.Session().Messages, c.historyLimit)
	reply, err := c.provider.Generate(ctx, agent, llm.Request{Messages: messages, Variables: vars})
	if err != nil {
		wErr := callflow.WrapError(callflow.ErrorTypeProviderFailure, err)
		wErr.NodeID = node.ID
		return callflow.Failure(wErr)
	}
	reply = strings.TrimSpace(reply)

	extracted := map[string]any{LastResponseVariable: reply}
	for _, rule := range cfg.Extract {
		value, ok, err := c.applyRule(rule, reply)
		if err != nil {
			logger.Warn("invalid extract pattern",
				"variable", rule.Variable, "pattern", rule.Pattern, "error", err)
			continue
		}
		if ok {
			extracted[rule.Variable] = value
		}
	}
	if len(cfg.ExtractAI) > 0 {
		for name, value := range c.extractAI(ctx, cfg.ExtractAI, messages, reply) {
			extracted[name] = value
		}
	}
	return callflow.Continue(reply, extracted)
}

func (c *Conversation) agentFor(cfg *callflow.ConversationConfig, vars map[string]any) llm.AgentConfig {
	agent := c.agent
	if cfg.SystemPrompt != "" {
		agent.SystemPrompt = script.Render(cfg.SystemPrompt, vars)
	}
	if cfg.Model != "" {
		agent.Model = cfg.Model
	}
	if cfg.Temperature != nil {
		agent.Temperature = cfg.Temperature
	}
	if prompt := script.Render(cfg.Prompt, vars); prompt != "" {
		if agent.SystemPrompt == "" {
			agent.SystemPrompt = prompt
		} else {
			agent.SystemPrompt += "\n\nCurrent step:\n" + prompt
		}
	}
	return agent
}

func (c *Conversation) applyRule(rule *callflow.ExtractRule, reply string) (any, bool, error) {
	re, err := c.compile(rule.Pattern)
	if err != nil {
		return nil, false, err
	}
	match := re.FindStringSubmatch(reply)
	if match == nil || rule.Group < 0 || rule.Group >= len(match) {
		return nil, false, nil
	}
	return capturedValue(match[rule.Group]), true, nil
}

// capturedValue converts a capture to an int or float64 when it is written
// in canonical numeric form, so conditions can compare it against numbers.
// Anything else, including zero-padded digits like "0042", stays a string.
func capturedValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) &&
		strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	return s
}

func (c *Conversation) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.patterns.Store(pattern, re)
	return re, nil
}

// extractAI asks the provider for a JSON object holding the requested
// variables. Extraction is best effort: any failure yields no variables.
func (c *Conversation) extractAI(ctx context.Context, wanted []*callflow.ExtractVariable, messages []llm.Message, reply string) map[string]any {
	logger := callflow.LoggerFromContext(ctx)
	var transcript strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&transcript, "%s: %s\n", llm.RoleAssistant, reply)

	var fields strings.Builder
	for _, v := range wanted {
		if v.Description != "" {
			fmt.Fprintf(&fields, "- %s: %s\n", v.Name, v.Description)
		} else {
			fmt.Fprintf(&fields, "- %s\n", v.Name)
		}
	}
	agent := llm.AgentConfig{
		Model: c.agent.Model,
		SystemPrompt: "Extract the following fields from the conversation.\n" + fields.String() +
			"Reply with a single JSON object keyed by field name. Omit fields that are not present.",
	}
	out, err := c.provider.Generate(ctx, agent, llm.Request{
		Messages:      []llm.Message{{Role: llm.RoleUser, Content: transcript.String()}},
		Deterministic: true,
	})
	if err != nil {
		logger.Warn("variable extraction failed", "error", err)
		return nil
	}
	object := jsonObject(out)
	if object == "" {
		logger.Warn("variable extraction returned no JSON object")
		return nil
	}
	values := map[string]any{}
	for _, v := range wanted {
		if r := gjson.Get(object, v.Name); r.Exists() && r.Type != gjson.Null {
			values[v.Name] = r.Value()
		}
	}
	return values
}

// jsonObject returns the outermost JSON object embedded in text.
func jsonObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	object := text[start : end+1]
	if !gjson.Valid(object) {
		return ""
	}
	return object
}
