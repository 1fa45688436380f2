package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ilm",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"stage"},
	)

	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ilm",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by final stage",
		},
		[]string{"outcome"}, // "done", "failed"
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ilm",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by kind and outcome",
		},
		[]string{"kind", "outcome"}, // "success", "failed", "skipped"
	)

	plannedInvocations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ilm",
			Name:      "planned_invocations",
			Help:      "Number of tool invocations produced per planning call",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		},
	)

	fallbackAnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ilm",
			Name:      "fallback_answers_total",
			Help:      "Total fallback answers by cause",
		},
		[]string{"cause"}, // "no_invocations", "execution", "synthesis", "panic"
	)
)
