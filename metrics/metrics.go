package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by the profiler and its middleware.
type Metrics struct {
	// RequestDuration observes the wall time of every profiled request.
	RequestDuration *prometheus.HistogramVec
	// SlowQueries counts queries logged for exceeding the threshold.
	SlowQueries prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perf_probe_request_duration_seconds",
				Help:    "Duration of profiled HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		SlowQueries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "perf_probe_slow_queries_total",
				Help: "Total number of SQL queries logged as slow",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RequestDuration, m.SlowQueries)
	}
	return m
}
