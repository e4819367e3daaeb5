package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

// BuildMetrics observes offline index builds. The indexer is a short-lived
// CLI, so the registry is written to a node_exporter textfile instead of
// being scraped.
type BuildMetrics struct {
	registry *prometheus.Registry
	service  string

	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	chunks        prometheus.Gauge
	filesIndexed  prometheus.Gauge
	filesSkipped  prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewBuildMetrics(service string) *BuildMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	buildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "runs_total",
			Help:      "Total index builds by status.",
		},
		[]string{"service", "status"},
	)
	buildDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "build",
			Name:        "duration_seconds",
			Help:        "Index build duration in seconds.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			ConstLabels: labels,
		},
	)
	chunks := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "build", Name: "chunks",
		Help: "Chunks in the last build.", ConstLabels: labels,
	})
	filesIndexed := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "build", Name: "files_indexed",
		Help: "Files that produced chunks in the last build.", ConstLabels: labels,
	})
	filesSkipped := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "build", Name: "files_skipped",
		Help: "Files skipped in the last build.", ConstLabels: labels,
	})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "build", Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful build.", ConstLabels: labels,
	})

	registry.MustRegister(buildsTotal, buildDuration, chunks, filesIndexed, filesSkipped, lastSuccess)

	return &BuildMetrics{
		registry:      registry,
		service:       service,
		buildsTotal:   buildsTotal,
		buildDuration: buildDuration,
		chunks:        chunks,
		filesIndexed:  filesIndexed,
		filesSkipped:  filesSkipped,
		lastSuccess:   lastSuccess,
	}
}

func (m *BuildMetrics) ObserveBuild(report *domain.BuildReport, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.buildsTotal.WithLabelValues(m.service, status).Inc()
	m.buildDuration.Observe(duration.Seconds())

	if report != nil {
		m.filesIndexed.Set(float64(report.FilesIndexed))
		m.filesSkipped.Set(float64(len(report.FilesSkipped)))
		if err == nil {
			m.chunks.Set(float64(report.Chunks))
		}
	}
	if err == nil {
		m.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (m *BuildMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
