package callflow

import (
	"context"
	"time"
)

// ExecutionCallbacks observes workflow executions. Callbacks run on the
// goroutine driving the execution and should return quickly.
type ExecutionCallbacks interface {
	BeforeWorkflowExecution(ctx context.Context, event *WorkflowExecutionEvent)

	// AfterWorkflowExecution reports the outcome of a run: Status is
	// completed on success, and Error is set when the run failed or stopped.
	AfterWorkflowExecution(ctx context.Context, event *WorkflowExecutionEvent)

	BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent)
	AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent)
}

// WorkflowExecutionEvent describes one workflow run.
type WorkflowExecutionEvent struct {
	ExecutionID string
	WorkflowID  string
	SessionID   string
	Status      ExecutionStatus
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Variables   map[string]any
	Visited     []string
	Result      *NodeResult
	Error       error
}

// NodeExecutionEvent describes one node execution. Result, EndTime, Duration
// and the variable changes are only set after the node ran.
type NodeExecutionEvent struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	NodeKind    NodeKind
	Result      *NodeResult
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Changes     map[string]any
	Deleted     []string
}

// BaseExecutionCallbacks ignores every event. Embed it to implement only
// the callbacks you need.
type BaseExecutionCallbacks struct{}

func (BaseExecutionCallbacks) BeforeWorkflowExecution(context.Context, *WorkflowExecutionEvent) {}

func (BaseExecutionCallbacks) AfterWorkflowExecution(context.Context, *WorkflowExecutionEvent) {}

func (BaseExecutionCallbacks) BeforeNodeExecution(context.Context, *NodeExecutionEvent) {}

func (BaseExecutionCallbacks) AfterNodeExecution(context.Context, *NodeExecutionEvent) {}

// CallbackChain delivers every event to each of its callbacks in order.
// Nil callbacks are ignored.
type CallbackChain struct {
	callbacks []ExecutionCallbacks
}

func NewCallbackChain(callbacks ...ExecutionCallbacks) *CallbackChain {
	c := &CallbackChain{}
	for _, callback := range callbacks {
		c.Add(callback)
	}
	return c
}

func (c *CallbackChain) Add(callback ExecutionCallbacks) {
	if callback != nil {
		c.callbacks = append(c.callbacks, callback)
	}
}

func (c *CallbackChain) BeforeWorkflowExecution(ctx context.Context, event *WorkflowExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeWorkflowExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterWorkflowExecution(ctx context.Context, event *WorkflowExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterWorkflowExecution(ctx, event)
	}
}

func (c *CallbackChain) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeNodeExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterNodeExecution(ctx, event)
	}
}
