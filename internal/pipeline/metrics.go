package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are batch counters written to a node-exporter textfile.
type Metrics struct {
	registry  *prometheus.Registry
	documents *prometheus.CounterVec
	units     *prometheus.CounterVec
	attempts  prometheus.Counter
	duration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_documents_total",
			Help: "Documents processed, by outcome.",
		}, []string{"status"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_units_total",
			Help: "Audio units synthesized, by status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiobook_synthesis_attempts_total",
			Help: "Synthesis calls including retries.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobook_document_duration_seconds",
			Help:    "Wall time spent per document.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.registry.MustRegister(m.documents, m.units, m.attempts, m.duration)
	return m
}

func (m *Metrics) Observe(o DocumentOutcome) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(string(o.Status)).Inc()
	m.units.WithLabelValues("completed").Add(float64(o.Completed))
	m.units.WithLabelValues("failed").Add(float64(o.Failed))
	m.attempts.Add(float64(o.Attempts))
	m.duration.Observe(o.Elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically replaces path with the current values.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
