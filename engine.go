package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/deepnoodle-ai/callflow/script"
	"go.jetify.com/typeid"
)

// NewExecutionID returns a new typeid for execution identification
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// EngineOptions configures an Engine
type EngineOptions struct {
	Executors    ExecutorRegistry
	Compiler     script.Compiler
	Logger       *slog.Logger
	Callbacks    ExecutionCallbacks
	Checkpointer Checkpointer
	NodeLogger   NodeLogger
	Formatter    WorkflowFormatter
}

// ExecuteOptions configures one workflow run
type ExecuteOptions struct {
	// StartNodeID overrides the workflow's start node.
	StartNodeID string

	// Variables seed the execution's variable bindings.
	Variables map[string]any

	// ExecutionID is generated when empty.
	ExecutionID string

	// Callbacks receive events of this run in addition to the engine callbacks.
	Callbacks ExecutionCallbacks

	// RestoreFrom continues a previous execution from its latest checkpoint.
	RestoreFrom string
}

// ExecutionResult is the outcome of ExecuteWorkflow.
type ExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Success     bool           `json:"success"`
	Result      *NodeResult    `json:"result,omitempty"`
	Visited     []string       `json:"visited"`
	Variables   map[string]any `json:"variables"`
	Elapsed     time.Duration  `json:"elapsed"`
	Error       error          `json:"-"`
}

// Engine executes workflows. Each call to ExecuteWorkflow creates an
// independent execution that is registered by id for the duration of the run
// so that it can be paused, resumed, stopped and inspected concurrently.
type Engine struct {
	executors    ExecutorRegistry
	compiler     script.Compiler
	logger       *slog.Logger
	callbacks    ExecutionCallbacks
	checkpointer Checkpointer
	nodeLogger   NodeLogger
	formatter    WorkflowFormatter

	executions sync.Map // execution id -> *ExecutionContext
}

// NewEngine returns a new Engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if len(opts.Executors) == 0 {
		return nil, fmt.Errorf("executors are required")
	}
	if opts.Compiler == nil {
		opts.Compiler = script.NewExprEngine(nil)
	}
	if opts.Logger == nil {
		opts.Logger = NewDiscardLogger()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.NodeLogger == nil {
		opts.NodeLogger = NewNullNodeLogger()
	}
	return &Engine{
		executors:    opts.Executors,
		compiler:     opts.Compiler,
		logger:       opts.Logger,
		callbacks:    opts.Callbacks,
		checkpointer: opts.Checkpointer,
		nodeLogger:   opts.NodeLogger,
		formatter:    opts.Formatter,
	}, nil
}

// Compiler returns the expression compiler used for edge conditions.
func (e *Engine) Compiler() script.Compiler {
	return e.compiler
}

// run holds the per-execution collaborators of the driving loop.
type run struct {
	exec        *ExecutionContext
	logger      *slog.Logger
	callbacks   ExecutionCallbacks
	checkpoints int
}

// ExecuteWorkflow runs wf against session until a terminal result. The
// returned result is always non-nil; the error is non-nil when the run did
// not succeed.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *Workflow, session *Session, opts ExecuteOptions) (*ExecutionResult, error) {
	if wf == nil {
		err := NewWorkflowError(ErrorTypeInvalidConfiguration, "workflow is required")
		return &ExecutionResult{Error: err}, err
	}

	exec, start, err := e.prepare(ctx, wf, session, opts)
	if err != nil {
		result := &ExecutionResult{
			ExecutionID: opts.ExecutionID,
			WorkflowID:  wf.ID(),
			Error:       err,
		}
		return result, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	exec.cancel = cancel

	if _, loaded := e.executions.LoadOrStore(exec.executionID, exec); loaded {
		err := NewWorkflowError(ErrorTypeInvalidConfiguration,
			fmt.Sprintf("execution %q is already running", exec.executionID))
		return &ExecutionResult{ExecutionID: exec.executionID, WorkflowID: wf.ID(), Error: err}, err
	}
	defer e.executions.CompareAndDelete(exec.executionID, exec)

	callbacks := e.callbacks
	if opts.Callbacks != nil {
		callbacks = NewCallbackChain(e.callbacks, opts.Callbacks)
	}
	r := &run{
		exec: exec,
		logger: e.logger.With(
			"execution_id", exec.executionID,
			"workflow_id", wf.ID(),
		),
		callbacks: callbacks,
	}
	return e.drive(runCtx, r, start)
}

// prepare builds the execution context and resolves the first node.
func (e *Engine) prepare(ctx context.Context, wf *Workflow, session *Session, opts ExecuteOptions) (*ExecutionContext, *Node, error) {
	if err := e.executors.Validate(wf); err != nil {
		return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration, err.Error())
	}

	if opts.RestoreFrom != "" {
		return e.restore(ctx, wf, session, opts.RestoreFrom)
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = NewExecutionID()
	}

	var start *Node
	if opts.StartNodeID != "" {
		node, ok := wf.GetNode(opts.StartNodeID)
		if !ok {
			return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration,
				fmt.Sprintf("start node %q not found", opts.StartNodeID))
		}
		start = node
	} else if start = wf.Start(); start == nil {
		return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration, "workflow has no start node")
	}
	return newExecutionContext(executionID, wf, session, opts.Variables), start, nil
}

// restore rebuilds an execution context from the latest checkpoint of a
// previous execution. The execution keeps its id.
func (e *Engine) restore(ctx context.Context, wf *Workflow, session *Session, executionID string) (*ExecutionContext, *Node, error) {
	checkpoint, err := e.checkpointer.LoadCheckpoint(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return nil, nil, NewWorkflowError(ErrorTypeExecutionNotFound,
			fmt.Sprintf("no checkpoint for execution %q", executionID))
	}
	if checkpoint.WorkflowID != wf.ID() {
		return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration,
			fmt.Sprintf("checkpoint belongs to workflow %q", checkpoint.WorkflowID))
	}
	if checkpoint.Next == "" {
		return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration,
			fmt.Sprintf("execution %q has no pending node", executionID))
	}
	next, ok := wf.GetNode(checkpoint.Next)
	if !ok {
		return nil, nil, NewWorkflowError(ErrorTypeInvalidConfiguration,
			fmt.Sprintf("checkpoint node %q not found", checkpoint.Next))
	}
	if session == nil {
		session = &Session{ID: checkpoint.SessionID}
	}
	exec := newExecutionContext(executionID, wf, session, checkpoint.Variables)
	if !checkpoint.StartTime.IsZero() {
		exec.startTime = checkpoint.StartTime
	}
	for _, id := range checkpoint.Visited {
		exec.visitedSet[id] = true
		exec.visited = append(exec.visited, id)
	}
	for id, result := range checkpoint.Results {
		exec.results[id] = result
	}
	return exec, next, nil
}

func (e *Engine) drive(ctx context.Context, r *run, current *Node) (*ExecutionResult, error) {
	exec := r.exec
	wf := exec.workflow
	exec.setStatus(ExecutionStatusRunning)

	r.logger.Info("workflow execution started", "start_node", current.ID)
	r.callbacks.BeforeWorkflowExecution(ctx, &WorkflowExecutionEvent{
		ExecutionID: exec.executionID,
		WorkflowID:  wf.ID(),
		SessionID:   exec.session.ID,
		Status:      ExecutionStatusRunning,
		StartTime:   exec.startTime,
		Variables:   exec.Variables(),
	})

	var last *NodeResult
	for current != nil {
		if err := exec.waitWhilePaused(ctx); err != nil || exec.isStopped() || ctx.Err() != nil {
			return e.finishStopped(ctx, r, last, current)
		}
		if exec.HasVisited(current.ID) {
			r.logger.Warn("loop detected", "node_id", current.ID)
			last = Failure(&WorkflowError{
				Type:   ErrorTypeLoopDetected,
				Cause:  fmt.Sprintf("node %q already visited", current.ID),
				NodeID: current.ID,
			})
			break
		}

		result := e.executeNode(ctx, r, current)
		if exec.isStopped() {
			// late result of a stopped execution; the node runs again on restore
			exec.unmarkVisited(current.ID)
			return e.finishStopped(ctx, r, last, current)
		}
		last = result

		next := e.next(ctx, r, current, result)
		e.saveCheckpoint(ctx, r, ExecutionStatusRunning, next, nil)
		current = next
	}

	return e.finish(ctx, r, last)
}

// executeNode runs one node and merges its variables into the context.
func (e *Engine) executeNode(ctx context.Context, r *run, node *Node) *NodeResult {
	exec := r.exec
	exec.markVisited(node.ID)
	logger := r.logger.With("node_id", node.ID, "node_kind", node.Kind)

	startTime := time.Now()
	event := &NodeExecutionEvent{
		ExecutionID: exec.executionID,
		WorkflowID:  exec.workflow.ID(),
		NodeID:      node.ID,
		NodeKind:    node.Kind,
		StartTime:   startTime,
	}
	r.callbacks.BeforeNodeExecution(ctx, event)
	if e.formatter != nil {
		e.formatter.PrintNodeStart(node.ID, node.Kind)
	}

	before := exec.Variables()
	nodeCtx := WithLogger(ctx, logger)
	result := e.invoke(nodeCtx, node, exec)
	if result.Error != nil && result.Error.NodeID == "" {
		result.Error.NodeID = node.ID
	}
	if exec.isStopped() {
		return result
	}

	exec.recordResult(node.ID, result)
	ApplyPatches(exec, MergePatches(result.Variables))
	changes, deleted := splitPatches(GeneratePatches(before, exec.Variables()))

	endTime := time.Now()
	event.Result = result
	event.EndTime = endTime
	event.Duration = endTime.Sub(startTime)
	event.Changes = changes
	event.Deleted = deleted
	r.callbacks.AfterNodeExecution(ctx, event)

	if result.Kind == ResultError {
		logger.Warn("node failed", "error", result.Error)
		if e.formatter != nil {
			e.formatter.PrintNodeError(node.ID, result.Error)
		}
	} else {
		logger.Debug("node completed", "result_kind", result.Kind, "duration", event.Duration)
		if e.formatter != nil {
			e.formatter.PrintNodeOutput(node.ID, result)
		}
	}

	entry := &NodeLogEntry{
		ID:          fmt.Sprintf("%s-%d", exec.executionID, len(exec.Visited())),
		ExecutionID: exec.executionID,
		WorkflowID:  exec.workflow.ID(),
		NodeID:      node.ID,
		NodeKind:    node.Kind,
		ResultKind:  result.Kind,
		Response:    result.Response,
		Changes:     changes,
		Deleted:     deleted,
		StartTime:   startTime,
		Duration:    event.Duration.Seconds(),
	}
	if result.Error != nil {
		entry.Error = result.Error.Error()
	}
	if err := e.nodeLogger.LogNode(ctx, entry); err != nil {
		logger.Error("failed to log node", "error", err)
	}
	return result
}

// invoke dispatches to the node's executor, converting a missing executor,
// a nil result or a panic into an error result.
func (e *Engine) invoke(ctx context.Context, node *Node, exec *ExecutionContext) (result *NodeResult) {
	executor, ok := e.executors[node.Kind]
	if !ok {
		return Failure(NewInvalidConfiguration(node, fmt.Sprintf("no executor for node kind %q", node.Kind)))
	}
	defer func() {
		if p := recover(); p != nil {
			result = Failure(&WorkflowError{
				Type:   ErrorTypeNodeExecutionFailed,
				Cause:  fmt.Sprintf("panic: %v", p),
				NodeID: node.ID,
			})
		}
	}()
	result = executor.Execute(ctx, node, exec)
	if result == nil {
		result = Failure(&WorkflowError{
			Type:   ErrorTypeNodeExecutionFailed,
			Cause:  "executor returned no result",
			NodeID: node.ID,
		})
	}
	return result
}

// next resolves the node following a result, or nil to stop.
func (e *Engine) next(ctx context.Context, r *run, node *Node, result *NodeResult) *Node {
	wf := r.exec.workflow
	vars := edgeVariables(r.exec, result)

	var edge *Edge
	switch result.Kind {
	case ResultContinue:
		edge = resolveEdge(ctx, e.compiler, r.logger, wf, node.ID, vars)
	case ResultCondition:
		edge = resolveConditionEdge(ctx, e.compiler, r.logger, wf, node.ID, vars)
	case ResultError:
		if !continuable(result.Error) {
			return nil
		}
		switch wf.Settings().ErrorHandling {
		case ErrorPolicyContinue:
			edge = resolveEdge(ctx, e.compiler, r.logger, wf, node.ID, vars)
		case ErrorPolicyFallback:
			fallbackID := wf.Settings().FallbackNode
			if fallbackID == "" || fallbackID == node.ID {
				return nil
			}
			fallback, _ := wf.GetNode(fallbackID)
			r.logger.Info("routing to fallback node", "failed_node", node.ID, "fallback_node", fallbackID)
			return fallback
		}
	}
	if edge == nil {
		return nil
	}
	target, _ := wf.GetNode(edge.To)
	return target
}

func (e *Engine) finish(ctx context.Context, r *run, last *NodeResult) (*ExecutionResult, error) {
	exec := r.exec
	result := &ExecutionResult{
		ExecutionID: exec.executionID,
		WorkflowID:  exec.workflow.ID(),
		Success:     true,
		Result:      last,
		Visited:     exec.Visited(),
		Variables:   exec.Variables(),
		Elapsed:     time.Since(exec.startTime),
	}
	status := ExecutionStatusCompleted
	if last != nil && last.Kind == ResultError {
		status = ExecutionStatusFailed
		result.Success = false
		if last.Error != nil {
			result.Error = last.Error
		} else {
			result.Error = NewWorkflowError(ErrorTypeNodeExecutionFailed, "node failed without error details")
		}
	}
	exec.setStatus(status)

	if result.Success {
		r.logger.Info("workflow execution completed",
			"result_kind", resultKind(last),
			"nodes", len(result.Visited),
			"elapsed", result.Elapsed)
	} else {
		r.logger.Error("workflow execution failed", "error", result.Error, "elapsed", result.Elapsed)
	}
	e.saveCheckpoint(ctx, r, status, nil, result.Error)
	e.afterWorkflow(ctx, r, status, result)
	return result, result.Error
}

// finishStopped ends a stopped or canceled run. The checkpoint keeps pending
// as the next node so the execution can be restored.
func (e *Engine) finishStopped(ctx context.Context, r *run, last *NodeResult, pending *Node) (*ExecutionResult, error) {
	exec := r.exec
	var err *WorkflowError
	if exec.isStopped() {
		err = NewWorkflowError(ErrorTypeExecutionStopped, fmt.Sprintf("execution %q stopped", exec.executionID))
	} else {
		err = ClassifyError(context.Cause(ctx))
		exec.setStatus(ExecutionStatusStopped)
	}
	result := &ExecutionResult{
		ExecutionID: exec.executionID,
		WorkflowID:  exec.workflow.ID(),
		Result:      last,
		Visited:     exec.Visited(),
		Variables:   exec.Variables(),
		Elapsed:     time.Since(exec.startTime),
		Error:       err,
	}
	r.logger.Info("workflow execution stopped", "elapsed", result.Elapsed)
	// the run context is canceled at this point
	ctx = context.WithoutCancel(ctx)
	e.saveCheckpoint(ctx, r, ExecutionStatusStopped, pending, err)
	e.afterWorkflow(ctx, r, ExecutionStatusStopped, result)
	return result, err
}

func (e *Engine) afterWorkflow(ctx context.Context, r *run, status ExecutionStatus, result *ExecutionResult) {
	exec := r.exec
	r.callbacks.AfterWorkflowExecution(ctx, &WorkflowExecutionEvent{
		ExecutionID: exec.executionID,
		WorkflowID:  exec.workflow.ID(),
		SessionID:   exec.session.ID,
		Status:      status,
		StartTime:   exec.startTime,
		EndTime:     exec.startTime.Add(result.Elapsed),
		Duration:    result.Elapsed,
		Variables:   result.Variables,
		Visited:     result.Visited,
		Result:      result.Result,
		Error:       result.Error,
	})
}

func (e *Engine) saveCheckpoint(ctx context.Context, r *run, status ExecutionStatus, next *Node, runErr error) {
	exec := r.exec
	r.checkpoints++
	checkpoint := &Checkpoint{
		ID:           fmt.Sprintf("%d", r.checkpoints),
		ExecutionID:  exec.executionID,
		WorkflowID:   exec.workflow.ID(),
		SessionID:    exec.session.ID,
		Status:       string(status),
		Variables:    exec.Variables(),
		Visited:      exec.Visited(),
		StartTime:    exec.startTime,
		CheckpointAt: time.Now(),
	}
	exec.mutex.RLock()
	checkpoint.Results = make(map[string]*NodeResult, len(exec.results))
	for id, result := range exec.results {
		checkpoint.Results[id] = result
	}
	exec.mutex.RUnlock()
	if next != nil {
		checkpoint.Next = next.ID
	}
	if status != ExecutionStatusRunning {
		checkpoint.EndTime = checkpoint.CheckpointAt
	}
	if runErr != nil {
		checkpoint.Error = runErr.Error()
	}
	if err := e.checkpointer.SaveCheckpoint(ctx, checkpoint); err != nil {
		r.logger.Error("failed to save checkpoint", "error", err)
	}
}

func resultKind(result *NodeResult) ResultKind {
	if result == nil {
		return ""
	}
	return result.Kind
}

func (e *Engine) lookup(executionID string) (*ExecutionContext, error) {
	value, ok := e.executions.Load(executionID)
	if !ok {
		return nil, NewWorkflowError(ErrorTypeExecutionNotFound,
			fmt.Sprintf("execution %q not found", executionID))
	}
	return value.(*ExecutionContext), nil
}

// Pause pauses an execution. The execution does not advance past the node it
// is currently running until resumed.
func (e *Engine) Pause(executionID string) error {
	exec, err := e.lookup(executionID)
	if err != nil {
		return err
	}
	exec.pause()
	e.logger.Info("execution paused", "execution_id", executionID)
	return nil
}

// Resume resumes a paused execution.
func (e *Engine) Resume(executionID string) error {
	exec, err := e.lookup(executionID)
	if err != nil {
		return err
	}
	exec.resume()
	e.logger.Info("execution resumed", "execution_id", executionID)
	return nil
}

// Stop deregisters an execution and cancels its in-flight work. It returns
// false if no such execution is registered. Stopping twice is harmless.
func (e *Engine) Stop(executionID string) bool {
	value, ok := e.executions.Load(executionID)
	if !ok {
		return false
	}
	exec := value.(*ExecutionContext)
	e.executions.CompareAndDelete(executionID, exec)
	if exec.stop() {
		e.logger.Info("execution stopped", "execution_id", executionID)
	}
	return true
}

// Status returns a snapshot of a registered execution.
func (e *Engine) Status(executionID string) (*ExecutionSnapshot, error) {
	exec, err := e.lookup(executionID)
	if err != nil {
		return nil, err
	}
	return exec.Snapshot(), nil
}

// Executions returns snapshots of all registered executions, oldest first.
func (e *Engine) Executions() []*ExecutionSnapshot {
	var snapshots []*ExecutionSnapshot
	e.executions.Range(func(_, value any) bool {
		snapshots = append(snapshots, value.(*ExecutionContext).Snapshot())
		return true
	})
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartTime.Before(snapshots[j].StartTime)
	})
	return snapshots
}

// ListExecutions returns summaries of checkpointed executions when the
// engine's checkpointer can enumerate them.
func (e *Engine) ListExecutions(ctx context.Context) ([]*ExecutionSummary, error) {
	lister, ok := e.checkpointer.(ExecutionLister)
	if !ok {
		return nil, errors.New("checkpointer does not support listing executions")
	}
	return lister.ListExecutions(ctx)
}
