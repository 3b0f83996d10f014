package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine activity. A nil *Metrics records nothing.
type Metrics struct {
	queries *prometheus.CounterVec
	latency prometheus.Histogram
	results prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgerag",
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by outcome (ok, fallback, invalid, error).",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgerag",
			Subsystem: "search",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency including the embedding call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgerag",
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Number of results returned per query.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
	}
	for _, c := range []prometheus.Collector{m.queries, m.latency, m.results} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(outcome string, start time.Time, n int) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.latency.Observe(time.Since(start).Seconds())
	if outcome == outcomeOK || outcome == outcomeFallback {
		m.results.Observe(float64(n))
	}
}

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)
