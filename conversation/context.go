// Package conversation holds the per-session state of squad conversations:
// message history, extracted variables, per-agent transfer state and
// knowledge shared by every agent of the squad.
package conversation

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/deepnoodle-ai/callflow/llm"
)

// DefaultHistoryLimit is the number of messages a context retains.
const DefaultHistoryLimit = 50

// AgentState is the context carried to an agent when a conversation is
// transferred to it.
type AgentState struct {
	Summary       string        `json:"summary,omitempty"`
	Messages      []llm.Message `json:"messages,omitempty"`
	TransferredAt time.Time     `json:"transferred_at"`
}

// Context is the conversation state of one session. It is safe for
// concurrent use.
type Context struct {
	sessionID string
	limit     int

	mutex       sync.RWMutex
	messages    []llm.Message
	variables   map[string]any
	shared      map[string]any
	agentStates map[string]*AgentState
}

// NewContext returns an empty context retaining at most limit messages.
// A limit of zero or less selects DefaultHistoryLimit.
func NewContext(sessionID string, limit int) *Context {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Context{
		sessionID:   sessionID,
		limit:       limit,
		variables:   map[string]any{},
		shared:      map[string]any{},
		agentStates: map[string]*AgentState{},
	}
}

// SessionID returns the id of the session the context belongs to.
func (c *Context) SessionID() string {
	return c.sessionID
}

// AddMessage appends a message, dropping the oldest messages beyond the
// history limit.
func (c *Context) AddMessage(msg llm.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.messages = append(c.messages, msg)
	if over := len(c.messages) - c.limit; over > 0 {
		c.messages = append([]llm.Message(nil), c.messages[over:]...)
	}
}

// Messages returns a copy of the retained history, oldest first.
func (c *Context) Messages() []llm.Message {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]llm.Message(nil), c.messages...)
}

// LastMessages returns a copy of the n most recent messages.
func (c *Context) LastMessages(n int) []llm.Message {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]llm.Message(nil), llm.LastMessages(c.messages, n)...)
}

// MessageCount returns the number of retained messages.
func (c *Context) MessageCount() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.messages)
}

// SetVariable binds a session variable.
func (c *Context) SetVariable(name string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.variables[name] = value
}

// Variable returns a session variable.
func (c *Context) Variable(name string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	value, ok := c.variables[name]
	return value, ok
}

// Variables returns a copy of the session variables.
func (c *Context) Variables() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return maps.Clone(c.variables)
}

// Share binds a value visible to every agent of the squad.
func (c *Context) Share(name string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.shared[name] = value
}

// Shared returns a copy of the shared knowledge.
func (c *Context) Shared() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return maps.Clone(c.shared)
}

// SharedKeys returns the names of the shared knowledge bindings, sorted.
func (c *Context) SharedKeys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	keys := make([]string, 0, len(c.shared))
	for key := range c.shared {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SetAgentState stores the transfer state of an agent.
func (c *Context) SetAgentState(agentID string, state AgentState) {
	state.Messages = append([]llm.Message(nil), state.Messages...)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.agentStates[agentID] = &state
}

// AgentState returns a copy of the transfer state of an agent.
func (c *Context) AgentState(agentID string) (AgentState, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.agentStates[agentID]
	if !ok {
		return AgentState{}, false
	}
	result := *state
	result.Messages = append([]llm.Message(nil), state.Messages...)
	return result, true
}
