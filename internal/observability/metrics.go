package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for upstream API traffic.
type Metrics struct {
	Registry *prometheus.Registry

	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitgram",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Calls to the FitGram API by realm, method and outcome.",
		}, []string{"realm", "method", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fitgram",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Latency of calls to the FitGram API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"realm", "method"}),
	}
	reg.MustRegister(m.upstreamCalls, m.upstreamLatency)
	return m
}

// ObserveUpstream records one upstream call. A nil receiver is a no-op.
func (m *Metrics) ObserveUpstream(realm, method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(realm, method, outcome).Inc()
	m.upstreamLatency.WithLabelValues(realm, method).Observe(elapsed.Seconds())
}
