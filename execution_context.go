package callflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus represents the execution status
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// ExecutionContext is the mutable state of one workflow run. It is only
// mutated by the engine driving that run; status readers take the read lock.
type ExecutionContext struct {
	executionID string
	workflow    *Workflow
	session     *Session
	startTime   time.Time

	mutex       sync.RWMutex
	status      ExecutionStatus
	variables   map[string]any
	visited     []string
	visitedSet  map[string]bool
	results     map[string]*NodeResult
	currentNode string
	paused      bool
	resumed     chan struct{}
	stopped     bool
	cancel      context.CancelFunc
}

func newExecutionContext(executionID string, wf *Workflow, session *Session, variables map[string]any) *ExecutionContext {
	if session == nil {
		session = &Session{}
	}
	return &ExecutionContext{
		executionID: executionID,
		workflow:    wf,
		session:     session,
		startTime:   time.Now(),
		status:      ExecutionStatusPending,
		variables:   copyMap(variables),
		visitedSet:  map[string]bool{},
		results:     map[string]*NodeResult{},
	}
}

// ExecutionID returns the execution id
func (c *ExecutionContext) ExecutionID() string {
	return c.executionID
}

// Workflow returns the workflow being executed
func (c *ExecutionContext) Workflow() *Workflow {
	return c.workflow
}

// Session returns the session the workflow runs against
func (c *ExecutionContext) Session() *Session {
	return c.session
}

// StartTime returns the time the execution was created
func (c *ExecutionContext) StartTime() time.Time {
	return c.startTime
}

// SetVariable sets the value of a variable.
func (c *ExecutionContext) SetVariable(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.variables[key] = value
}

// DeleteVariable deletes a variable.
func (c *ExecutionContext) DeleteVariable(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.variables, key)
}

// ListVariables returns the sorted names of all variables.
func (c *ExecutionContext) ListVariables() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	keys := make([]string, 0, len(c.variables))
	for key := range c.variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GetVariable returns the value of a variable.
func (c *ExecutionContext) GetVariable(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	value, exists := c.variables[key]
	return value, exists
}

// Variables returns a copy of the variable bindings.
func (c *ExecutionContext) Variables() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyMap(c.variables)
}

// Visited returns the ids of executed nodes in execution order.
func (c *ExecutionContext) Visited() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]string(nil), c.visited...)
}

// HasVisited reports whether the node already executed in this run.
func (c *ExecutionContext) HasVisited(nodeID string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.visitedSet[nodeID]
}

// Result returns the last result recorded for a node.
func (c *ExecutionContext) Result(nodeID string) (*NodeResult, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result, ok := c.results[nodeID]
	return result, ok
}

// IsPaused reports whether the execution is paused.
func (c *ExecutionContext) IsPaused() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.paused
}

func (c *ExecutionContext) markVisited(nodeID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.visitedSet[nodeID] = true
	c.visited = append(c.visited, nodeID)
	c.currentNode = nodeID
}

// unmarkVisited reverts markVisited for the most recent node.
func (c *ExecutionContext) unmarkVisited(nodeID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if n := len(c.visited); n > 0 && c.visited[n-1] == nodeID {
		c.visited = c.visited[:n-1]
		delete(c.visitedSet, nodeID)
	}
}

func (c *ExecutionContext) recordResult(nodeID string, result *NodeResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.results[nodeID] = result
}

func (c *ExecutionContext) setStatus(status ExecutionStatus) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status = status
}

func (c *ExecutionContext) getStatus() ExecutionStatus {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status
}

func (c *ExecutionContext) pause() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.paused || c.stopped {
		return
	}
	c.paused = true
	c.resumed = make(chan struct{})
}

func (c *ExecutionContext) resume() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumed)
}

// stop marks the execution stopped and cancels in-flight work. It returns
// false if the execution was already stopped.
func (c *ExecutionContext) stop() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	c.status = ExecutionStatusStopped
	if c.paused {
		c.paused = false
		close(c.resumed)
	}
	if c.cancel != nil {
		c.cancel()
	}
	return true
}

func (c *ExecutionContext) isStopped() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stopped
}

// waitWhilePaused blocks while the execution is paused.
func (c *ExecutionContext) waitWhilePaused(ctx context.Context) error {
	for {
		c.mutex.RLock()
		paused, resumed := c.paused, c.resumed
		c.mutex.RUnlock()
		if !paused {
			return nil
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns a read-only view of the execution.
func (c *ExecutionContext) Snapshot() *ExecutionSnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	status := c.status
	if c.paused {
		status = ExecutionStatusPaused
	}
	return &ExecutionSnapshot{
		ExecutionID: c.executionID,
		WorkflowID:  c.workflow.ID(),
		SessionID:   c.session.ID,
		Status:      status,
		CurrentNode: c.currentNode,
		Visited:     append([]string(nil), c.visited...),
		Variables:   copyMap(c.variables),
		Paused:      c.paused,
		StartTime:   c.startTime,
		Elapsed:     time.Since(c.startTime),
	}
}

// ExecutionSnapshot is a read-only view of a running execution.
type ExecutionSnapshot struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	CurrentNode string          `json:"current_node,omitempty"`
	Visited     []string        `json:"visited"`
	Variables   map[string]any  `json:"variables"`
	Paused      bool            `json:"paused"`
	StartTime   time.Time       `json:"start_time"`
	Elapsed     time.Duration   `json:"elapsed"`
}

func copyMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
