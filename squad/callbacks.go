package squad

import (
	"context"
	"time"
)

// Callbacks receive squad session notifications. They are called
// synchronously from the goroutine processing the turn.
type Callbacks interface {
	OnSessionStarted(ctx context.Context, event *SessionEvent)
	OnAssistantTransferred(ctx context.Context, event *TransferEvent)
	OnSessionEnded(ctx context.Context, event *SessionEvent)
}

// SessionEvent describes the start or end of a squad session. Summary is
// set when the session ends.
type SessionEvent struct {
	SessionID     string
	SquadID       string
	CallSessionID string
	ActiveAgentID string
	StartTime     time.Time
	Duration      time.Duration
	Transfers     int
	Summary       string
}

// TransferEvent is the "assistant transferred" notification.
type TransferEvent struct {
	SessionID     string
	SquadID       string
	CallSessionID string
	Transfer      TransferRecord
}

// BaseCallbacks provides a default implementation that does nothing
type BaseCallbacks struct{}

func (b *BaseCallbacks) OnSessionStarted(ctx context.Context, event *SessionEvent) {}

func (b *BaseCallbacks) OnAssistantTransferred(ctx context.Context, event *TransferEvent) {}

func (b *BaseCallbacks) OnSessionEnded(ctx context.Context, event *SessionEvent) {}

// CallbackChain fans notifications out to several callbacks in order.
type CallbackChain struct {
	callbacks []Callbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...Callbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback Callbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) OnSessionStarted(ctx context.Context, event *SessionEvent) {
	for _, callback := range c.callbacks {
		callback.OnSessionStarted(ctx, event)
	}
}

func (c *CallbackChain) OnAssistantTransferred(ctx context.Context, event *TransferEvent) {
	for _, callback := range c.callbacks {
		callback.OnAssistantTransferred(ctx, event)
	}
}

func (c *CallbackChain) OnSessionEnded(ctx context.Context, event *SessionEvent) {
	for _, callback := range c.callbacks {
		callback.OnSessionEnded(ctx, event)
	}
}
