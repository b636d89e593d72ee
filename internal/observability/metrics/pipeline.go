package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics implements the pipeline observer port on a dedicated
// Prometheus registry.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	querySources  prometheus.Histogram
}

func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &PipelineMetrics{
		registry: registry,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kb_pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kb_pipeline",
			Name:      "cache_lookups_total",
			Help:      "Answer cache lookups by result.",
		}, []string{"result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kb_pipeline",
			Name:      "queries_total",
			Help:      "Completed pipeline runs by status.",
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kb_pipeline",
			Name:      "query_duration_seconds",
			Help:      "End-to-end pipeline duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		querySources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kb_pipeline",
			Name:      "query_sources",
			Help:      "Distinct source documents cited per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
	}
	registry.MustRegister(m.stageDuration, m.cacheLookups, m.queries, m.queryDuration, m.querySources)
	return m
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObserveQuery(status string, sourceCount int, duration time.Duration) {
	m.queries.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
	m.querySources.Observe(float64(sourceCount))
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
