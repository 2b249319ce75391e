// Package llm defines the text-generation provider capability used by
// conversation nodes, condition evaluation and squad agents.
package llm

import (
	"context"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// AgentConfig is the persona and model configuration a reply is generated
// with.
type AgentConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Request is the input of a generation.
type Request struct {
	Messages  []Message
	Variables map[string]any

	// Deterministic forces temperature 0 regardless of the agent setting.
	Deterministic bool
}

// Temperature returns the effective sampling temperature of a request made
// with agent. Nil means the provider default.
func (r Request) Temperature(agent AgentConfig) *float64 {
	if r.Deterministic {
		zero := 0.0
		return &zero
	}
	return agent.Temperature
}

// Provider generates assistant text.
type Provider interface {
	Generate(ctx context.Context, agent AgentConfig, req Request) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, agent AgentConfig, req Request) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, agent AgentConfig, req Request) (string, error) {
	return f(ctx, agent, req)
}

// LastMessages returns at most n of the most recent messages.
func LastMessages(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
