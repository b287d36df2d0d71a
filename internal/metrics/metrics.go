package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the service.
type Metrics struct {
	relayQueries  *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	rejected      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	refreshes     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		relayQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapgoals",
			Name:      "relay_queries_total",
			Help:      "Relay queries by relay and outcome",
		}, []string{"relay", "status"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zapgoals",
			Name:      "relay_query_duration_seconds",
			Help:      "Time spent waiting for a relay to reach end of stored events",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5},
		}, []string{"relay"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapgoals",
			Name:      "events_rejected_total",
			Help:      "Events dropped by validation, by kind",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapgoals",
			Name:      "cache_lookups_total",
			Help:      "Listing cache lookups by result",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapgoals",
			Name:      "goal_refreshes_total",
			Help:      "Watched goal refreshes by outcome",
		}, []string{"status"}),
		gatherer: reg,
	}

	reg.MustRegister(m.relayQueries, m.relayDuration, m.rejected, m.cacheLookups, m.refreshes)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RelayQuery(relay, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.relayQueries.WithLabelValues(relay, status).Inc()
	m.relayDuration.WithLabelValues(relay).Observe(elapsed.Seconds())
}

func (m *Metrics) Rejected(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rejected.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Refresh(status string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(status).Inc()
}
