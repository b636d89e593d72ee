package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IndexerMetrics instruments the index worker on its own registry, served
// from the worker's metrics port.
type IndexerMetrics struct {
	registry *prometheus.Registry

	documents     *prometheus.CounterVec
	indexDuration prometheus.Histogram
	chunksPerDoc  prometheus.Histogram
	inFlight      prometheus.Gauge
}

func NewIndexerMetrics() *IndexerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &IndexerMetrics{
		registry: registry,
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kb_indexer",
			Name:      "documents_total",
			Help:      "Indexed documents by outcome.",
		}, []string{"outcome"}),
		indexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kb_indexer",
			Name:      "document_duration_seconds",
			Help:      "Time spent indexing one document.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		chunksPerDoc: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kb_indexer",
			Name:      "chunks_per_document",
			Help:      "Chunks produced per indexed document.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kb_indexer",
			Name:      "in_flight_documents",
			Help:      "Documents currently being indexed.",
		}),
	}
	registry.MustRegister(m.documents, m.indexDuration, m.chunksPerDoc, m.inFlight)
	return m
}

func (m *IndexerMetrics) ObserveDocument(outcome string, chunks int, duration time.Duration) {
	m.documents.WithLabelValues(outcome).Inc()
	m.indexDuration.Observe(duration.Seconds())
	if outcome != "error" {
		m.chunksPerDoc.Observe(float64(chunks))
	}
}

func (m *IndexerMetrics) IncInFlight() { m.inFlight.Inc() }
func (m *IndexerMetrics) DecInFlight() { m.inFlight.Dec() }

func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
