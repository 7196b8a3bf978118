package places

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Subsystem: "places",
		Name:      "request_latency_seconds",
		Help:      "Latency of successful provider calls by endpoint",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	providerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Subsystem: "places",
		Name:      "retries_total",
		Help:      "Provider call retries after transient failures",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Subsystem: "places",
		Name:      "cache_lookups_total",
		Help:      "Provider result cache lookups by outcome (hit, miss, waited)",
	}, []string{"outcome"})
)

func observeProviderLatency(endpoint string, d time.Duration) {
	providerLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}
