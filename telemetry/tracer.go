package telemetry

import (
	"context"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/squad"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/deepnoodle-ai/callflow"

// Tracer records a span per workflow execution with a child span per node,
// and a span per squad session with an event per transfer. Callbacks cannot
// replace the caller's context, so open spans are tracked by id.
type Tracer struct {
	tracer trace.Tracer

	executions sync.Map // execution id -> trace.Span
	nodes      sync.Map // execution id + node id -> trace.Span
	sessions   sync.Map // squad session id -> trace.Span
}

var (
	_ callflow.ExecutionCallbacks = (*Tracer)(nil)
	_ squad.Callbacks             = (*Tracer)(nil)
)

// NewTracer returns a Tracer using tp, or the global provider when nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

func nodeKey(executionID, nodeID string) string {
	return executionID + "/" + nodeID
}

func (t *Tracer) BeforeWorkflowExecution(ctx context.Context, event *callflow.WorkflowExecutionEvent) {
	_, span := t.tracer.Start(ctx, "workflow.execute",
		trace.WithTimestamp(event.StartTime),
		trace.WithAttributes(
			attribute.String("callflow.execution_id", event.ExecutionID),
			attribute.String("callflow.workflow_id", event.WorkflowID),
			attribute.String("callflow.session_id", event.SessionID),
		))
	t.executions.Store(event.ExecutionID, span)
}

func (t *Tracer) AfterWorkflowExecution(ctx context.Context, event *callflow.WorkflowExecutionEvent) {
	value, ok := t.executions.LoadAndDelete(event.ExecutionID)
	if !ok {
		return
	}
	span := value.(trace.Span)

	// nodes interrupted by a stop never report back
	prefix := event.ExecutionID + "/"
	t.nodes.Range(func(key, value any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			t.nodes.Delete(key)
			value.(trace.Span).End()
		}
		return true
	})

	span.SetAttributes(
		attribute.String("callflow.status", string(event.Status)),
		attribute.Int("callflow.nodes", len(event.Visited)),
	)
	if event.Error != nil {
		span.RecordError(event.Error)
		span.SetStatus(codes.Error, event.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(event.EndTime))
}

func (t *Tracer) BeforeNodeExecution(ctx context.Context, event *callflow.NodeExecutionEvent) {
	if value, ok := t.executions.Load(event.ExecutionID); ok {
		ctx = trace.ContextWithSpan(ctx, value.(trace.Span))
	}
	_, span := t.tracer.Start(ctx, "workflow.node",
		trace.WithTimestamp(event.StartTime),
		trace.WithAttributes(
			attribute.String("callflow.node_id", event.NodeID),
			attribute.String("callflow.node_kind", string(event.NodeKind)),
		))
	t.nodes.Store(nodeKey(event.ExecutionID, event.NodeID), span)
}

func (t *Tracer) AfterNodeExecution(ctx context.Context, event *callflow.NodeExecutionEvent) {
	value, ok := t.nodes.LoadAndDelete(nodeKey(event.ExecutionID, event.NodeID))
	if !ok {
		return
	}
	span := value.(trace.Span)
	if result := event.Result; result != nil {
		span.SetAttributes(attribute.String("callflow.result_kind", string(result.Kind)))
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, result.Error.Error())
		}
	}
	span.End(trace.WithTimestamp(event.EndTime))
}

func (t *Tracer) OnSessionStarted(ctx context.Context, event *squad.SessionEvent) {
	_, span := t.tracer.Start(ctx, "squad.session",
		trace.WithTimestamp(event.StartTime),
		trace.WithAttributes(
			attribute.String("callflow.squad_session_id", event.SessionID),
			attribute.String("callflow.squad_id", event.SquadID),
			attribute.String("callflow.call_session_id", event.CallSessionID),
			attribute.String("callflow.agent_id", event.ActiveAgentID),
		))
	t.sessions.Store(event.SessionID, span)
}

func (t *Tracer) OnAssistantTransferred(ctx context.Context, event *squad.TransferEvent) {
	value, ok := t.sessions.Load(event.SessionID)
	if !ok {
		return
	}
	value.(trace.Span).AddEvent("assistant.transferred",
		trace.WithTimestamp(event.Transfer.Timestamp),
		trace.WithAttributes(
			attribute.String("callflow.from_agent_id", event.Transfer.FromAgentID),
			attribute.String("callflow.to_agent_id", event.Transfer.ToAgentID),
			attribute.String("callflow.reason", event.Transfer.Reason),
			attribute.Bool("callflow.context_preserved", event.Transfer.ContextPreserved),
		))
}

func (t *Tracer) OnSessionEnded(ctx context.Context, event *squad.SessionEvent) {
	value, ok := t.sessions.LoadAndDelete(event.SessionID)
	if !ok {
		return
	}
	span := value.(trace.Span)
	span.SetAttributes(
		attribute.String("callflow.agent_id", event.ActiveAgentID),
		attribute.Int("callflow.transfers", event.Transfers),
	)
	span.End()
}
