package enrichment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "search",
	Subsystem: "enrichment",
	Name:      "jobs_total",
	Help:      "Enrichment jobs by outcome (found, not_found, timeout, lock_lost, rejected)",
}, []string{"outcome"})
