// Package metrics holds the prometheus collectors of a sporenet process.
// Every collector is labelled by node so that the nodes of a swarm can share
// one registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Epochs counts finished epochs by outcome: "trained", "groupless",
	// "failed".
	Epochs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_epochs_total",
			Help: "Total number of epochs by outcome",
		},
		[]string{"node", "outcome"},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_state_transitions_total",
			Help: "Total number of coordinator state transitions",
		},
		[]string{"node", "from", "to"},
	)

	TrainingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_training_failures_total",
			Help: "Total number of failed training runs",
		},
		[]string{"node"},
	)

	Feedback = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sporenet_feedback",
			Help: "Last feedback value",
		},
		[]string{"node"},
	)

	FeedbackThreshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sporenet_feedback_threshold",
			Help: "Current feedback threshold",
		},
		[]string{"node"},
	)

	GroupSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_group_switches_total",
			Help: "Total number of successful group moves",
		},
		[]string{"node"},
	)

	DirectoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_directory_errors_total",
			Help: "Total number of failed group directory operations",
		},
		[]string{"node", "operation"},
	)

	AggregationPeers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sporenet_aggregation_peers",
			Help: "Number of peer snapshots in the last aggregation",
		},
		[]string{"node"},
	)

	AggregationSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_aggregation_skips_total",
			Help: "Total number of peer contributions skipped for a shape mismatch",
		},
		[]string{"node"},
	)

	SporeDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_spore_decode_drops_total",
			Help: "Total number of malformed spore payloads dropped",
		},
		[]string{"node"},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sporenet_transport_errors_total",
			Help: "Total number of failed gossip operations",
		},
		[]string{"node", "operation"},
	)
)
