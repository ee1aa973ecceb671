// Package observability exposes the Prometheus metrics the control plane
// reports at /metrics, grounded on the same promauto wiring the rest of the
// pack uses for its scheduler/reconciler metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProposalLifecycle counts proposals by the terminal or intermediate
	// state they reach (computed, revised, approved, rejected, superseded,
	// failed).
	ProposalLifecycle = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineflow_proposal_lifecycle_total",
		Help: "Proposals observed, labeled by outcome",
	}, []string{"outcome"})

	// ProposalComputeDuration tracks one fetch→sort→plan pipeline run.
	ProposalComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineflow_proposal_compute_duration_seconds",
		Help:    "Duration of one compute_proposal pipeline run",
		Buckets: prometheus.DefBuckets,
	})

	// ConflictCount tracks the number of sales orders flagged late in the
	// most recently computed proposal.
	ConflictCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineflow_conflict_count",
		Help: "Number of sales orders flagged late in the current proposal",
	})

	// WorstSlackMinutes tracks the most negative slack in the current
	// proposal (positive values mean the schedule is clean).
	WorstSlackMinutes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineflow_worst_slack_minutes",
		Help: "Worst-case signed slack, in working minutes, across the current proposal",
	})

	// GatewayLatency tracks external-system gateway call latency by op.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lineflow_gateway_latency_seconds",
		Help:    "Manufacturing API gateway call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// GatewayRetries counts retry attempts, labeled by whether the retry
	// ultimately succeeded.
	GatewayRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineflow_gateway_retries_total",
		Help: "Gateway calls that required at least one retry",
	}, []string{"op", "outcome"})

	// FactoryEventsIngested counts factory failure events received, labeled
	// by whether they were matched to an executing production order.
	FactoryEventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineflow_factory_events_ingested_total",
		Help: "Factory failure events received by the intake endpoint",
	}, []string{"resolution"})

	// RecoveryActionsIssued counts cancel_order/restart_order actions taken.
	RecoveryActionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineflow_recovery_actions_total",
		Help: "Recovery actions issued in response to factory events",
	}, []string{"action"})

	// AIAdvisorFallbacks counts compute_proposal runs that fell back to pure
	// EDF after an AI Advisor failure or timeout.
	AIAdvisorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineflow_ai_advisor_fallbacks_total",
		Help: "compute_proposal runs that fell back to EDF after an advisor failure",
	})

	// LeaderStatus is 1 when this instance holds the Orchestrator leader
	// lock, 0 otherwise.
	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineflow_leader_status",
		Help: "1 if this instance currently holds Orchestrator leadership",
	})

	// LeadershipTransitions counts leadership acquisition/loss events.
	LeadershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineflow_leader_transitions_total",
		Help: "Total leadership transitions",
	}, []string{"node_id", "event"})
)
