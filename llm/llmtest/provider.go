// Package llmtest provides a scriptable llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/deepnoodle-ai/callflow/llm"
)

// Call records one Generate invocation.
type Call struct {
	Agent   llm.AgentConfig
	Request llm.Request
}

// Responder produces the reply for a call.
type Responder func(call Call) (string, error)

// Provider is a fake llm.Provider. Replies come from Respond when set,
// otherwise from Replies in order, then Default.
type Provider struct {
	Respond Responder
	Replies []string
	Default string

	mutex sync.Mutex
	calls []Call
}

// New returns a Provider replying with the given replies in order.
func New(replies ...string) *Provider {
	return &Provider{Replies: replies}
}

// Func returns a Provider driven by fn.
func Func(fn Responder) *Provider {
	return &Provider{Respond: fn}
}

func (p *Provider) Generate(ctx context.Context, agent llm.AgentConfig, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := Call{Agent: agent, Request: req}
	p.mutex.Lock()
	p.calls = append(p.calls, call)
	var reply string
	var scripted bool
	if p.Respond == nil {
		if len(p.Replies) > 0 {
			reply, p.Replies = p.Replies[0], p.Replies[1:]
		} else {
			reply = p.Default
		}
		scripted = true
	}
	p.mutex.Unlock()
	if scripted {
		return reply, nil
	}
	return p.Respond(call)
}

// Calls returns the recorded calls.
func (p *Provider) Calls() []Call {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.calls)
}
