package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"stage"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Subsystem: "pipeline",
		Name:      "stage_failures_total",
		Help:      "Pipeline stage failures by stage",
	}, []string{"stage"})
)
