package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServingMetrics observes the query path and index reloads of one process.
// It implements ports.QueryObserver.
type ServingMetrics struct {
	service string

	queriesTotal   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	candidates     *prometheus.HistogramVec
	results        *prometheus.HistogramVec
	reloadsTotal   *prometheus.CounterVec
	lastReloadTime prometheus.Gauge
}

func newServingMetrics(registry *prometheus.Registry, service string) *ServingMetrics {
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total knowledge queries by outcome status.",
		},
		[]string{"service", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Knowledge query duration in seconds by outcome status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	candidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fused_candidates",
			Help:      "Distribution of fused candidates per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 20},
		},
		[]string{"service"},
	)
	results := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "results",
			Help:      "Distribution of returned results per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	reloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "reloads_total",
			Help:      "Total index generation loads by status.",
		},
		[]string{"service", "status"},
	)
	lastReloadTime := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "last_reload_timestamp_seconds",
			Help:        "Unix time of the last successful index load.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(queriesTotal, queryDuration, candidates, results, reloadsTotal, lastReloadTime)

	return &ServingMetrics{
		service:        service,
		queriesTotal:   queriesTotal,
		queryDuration:  queryDuration,
		candidates:     candidates,
		results:        results,
		reloadsTotal:   reloadsTotal,
		lastReloadTime: lastReloadTime,
	}
}

func (m *ServingMetrics) ObserveQuery(status string, candidates, results int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.queriesTotal.WithLabelValues(m.service, status).Inc()
	m.queryDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	m.candidates.WithLabelValues(m.service).Observe(float64(candidates))
	m.results.WithLabelValues(m.service).Observe(float64(results))
}

func (m *ServingMetrics) ObserveReload(err error) {
	if err != nil {
		m.reloadsTotal.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.reloadsTotal.WithLabelValues(m.service, "success").Inc()
	m.lastReloadTime.SetToCurrentTime()
}
