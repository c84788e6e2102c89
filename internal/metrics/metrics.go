// Package metrics exposes the process-wide Prometheus instrumentation used by
// the workflow driver and the entity stores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the orchestration core records into.
type Metrics struct {
	ExecutionsStarted   prometheus.Counter
	ExecutionsFinished  *prometheus.CounterVec
	ExecutionIterations prometheus.Histogram

	NodeDuration *prometheus.HistogramVec
	NodeFailures *prometheus.CounterVec

	CheckpointsCreated  prometheus.Counter
	CheckpointDecisions *prometheus.CounterVec

	ToolCallTransitions *prometheus.CounterVec

	VotesRecorded *prometheus.CounterVec
	PanelOutcomes *prometheus.CounterVec

	DelegationDuration prometheus.Histogram
	DelegationFailures prometheus.Counter
}

// New registers the full collector set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExecutionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "executions_started_total",
			Help:      "Workflow executions started.",
		}),
		ExecutionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "executions_finished_total",
			Help:      "Workflow executions finished, by terminal status.",
		}, []string{"status"}),
		ExecutionIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "execution_iterations",
			Help:      "Graph passes per execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		NodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "node_duration_seconds",
			Help:      "Wall time per node execution, by step type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step_type"}),
		NodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "node_failures_total",
			Help:      "Node executions that ended in failure, by step type.",
		}, []string{"step_type"}),
		CheckpointsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "checkpoints_created_total",
			Help:      "Checkpoints created by the driver.",
		}),
		CheckpointDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "checkpoint_decisions_total",
			Help:      "Checkpoint decisions recorded, by decision.",
		}, []string{"decision"}),
		ToolCallTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "tool_call_transitions_total",
			Help:      "Tool call status transitions, by resulting status.",
		}, []string{"status"}),
		VotesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "review_votes_total",
			Help:      "Reviewer votes recorded, by vote kind.",
		}, []string{"vote"}),
		PanelOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "review_panel_outcomes_total",
			Help:      "Aggregated review panel outcomes.",
		}, []string{"outcome"}),
		DelegationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "delegation_duration_seconds",
			Help:      "Wall time of agent delegation calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		DelegationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "delegation_failures_total",
			Help:      "Delegation calls that failed softly.",
		}),
	}
}

// Nop returns metrics backed by a private registry, for tests and callers
// that do not scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
