// Package telemetry exports workflow and squad activity as Prometheus
// metrics and OpenTelemetry traces. Both are plugged in as callbacks.
package telemetry

import (
	"context"
	"net/http"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/squad"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "callflow"

// Collector records execution and squad metrics. It implements both
// callflow.ExecutionCallbacks and squad.Callbacks.
type Collector struct {
	callflow.BaseExecutionCallbacks

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	activeExecutions  prometheus.Gauge
	nodesTotal        *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec

	sessionsActive  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	transfersTotal  *prometheus.CounterVec
}

var (
	_ callflow.ExecutionCallbacks = (*Collector)(nil)
	_ squad.Callbacks             = (*Collector)(nil)
)

// NewCollector registers the metrics with reg under namespace. A nil reg
// uses the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of finished workflow executions",
		}, []string{"workflow_id", "status"}),

		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"workflow_id"}),

		activeExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_executions_active",
			Help:      "Number of workflow executions in progress",
		}),

		nodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by node kind and result kind",
		}, []string{"kind", "result"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "squad_sessions_active",
			Help:      "Number of live squad sessions",
		}),

		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "squad_sessions_total",
			Help:      "Total number of started squad sessions",
		}, []string{"squad_id"}),

		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "squad_session_duration_seconds",
			Help:      "Squad session duration in seconds",
			Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"squad_id"}),

		transfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "squad_transfers_total",
			Help:      "Total number of transfers between squad agents",
		}, []string{"squad_id", "from_agent_id", "to_agent_id"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) BeforeWorkflowExecution(ctx context.Context, event *callflow.WorkflowExecutionEvent) {
	c.activeExecutions.Inc()
}

func (c *Collector) AfterWorkflowExecution(ctx context.Context, event *callflow.WorkflowExecutionEvent) {
	c.activeExecutions.Dec()
	c.executionsTotal.WithLabelValues(event.WorkflowID, string(event.Status)).Inc()
	c.executionDuration.WithLabelValues(event.WorkflowID).Observe(event.Duration.Seconds())
}

func (c *Collector) AfterNodeExecution(ctx context.Context, event *callflow.NodeExecutionEvent) {
	result := "none"
	if event.Result != nil {
		result = string(event.Result.Kind)
	}
	c.nodesTotal.WithLabelValues(string(event.NodeKind), result).Inc()
	c.nodeDuration.WithLabelValues(string(event.NodeKind)).Observe(event.Duration.Seconds())
}

func (c *Collector) OnSessionStarted(ctx context.Context, event *squad.SessionEvent) {
	c.sessionsActive.Inc()
	c.sessionsTotal.WithLabelValues(event.SquadID).Inc()
}

func (c *Collector) OnAssistantTransferred(ctx context.Context, event *squad.TransferEvent) {
	c.transfersTotal.WithLabelValues(event.SquadID, event.Transfer.FromAgentID, event.Transfer.ToAgentID).Inc()
}

func (c *Collector) OnSessionEnded(ctx context.Context, event *squad.SessionEvent) {
	c.sessionsActive.Dec()
	c.sessionDuration.WithLabelValues(event.SquadID).Observe(event.Duration.Seconds())
}
