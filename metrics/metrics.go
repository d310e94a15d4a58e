// Package metrics defines the Prometheus instrumentation for the
// co-investigator: turn routing, checkpoint lifecycle, and oracle
// traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled turns by route and outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinvestigator",
		Name:      "turns_total",
		Help:      "Turns handled, by route and outcome.",
	}, []string{"route", "outcome"})

	// TurnDuration observes turn handling latency by route.
	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coinvestigator",
		Name:      "turn_duration_seconds",
		Help:      "Turn handling latency, by route.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2.5, 10),
	}, []string{"route"})

	// CheckpointsRaised counts checkpoints by trigger reason.
	CheckpointsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinvestigator",
		Name:      "checkpoints_raised_total",
		Help:      "Checkpoints raised, by trigger reason.",
	}, []string{"reason"})

	// CheckpointResolutions counts resolution attempts by action and
	// outcome (applied, replayed, stale, rejected).
	CheckpointResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinvestigator",
		Name:      "checkpoint_resolutions_total",
		Help:      "Checkpoint resolution attempts, by action and outcome.",
	}, []string{"action", "outcome"})

	// OracleRequests counts LLM calls by capability and result.
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinvestigator",
		Name:      "oracle_requests_total",
		Help:      "LLM oracle requests, by capability and result.",
	}, []string{"capability", "result"})
)
