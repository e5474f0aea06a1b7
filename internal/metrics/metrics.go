// Package metrics holds the Prometheus collectors of one engine instance.
// Each engine owns a private registry so several engines can coexist in a
// process (and in tests) without collector name clashes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Question outcomes recorded by ObserveQuestion.
const (
	OutcomeGrounded   = "grounded"
	OutcomeUngrounded = "ungrounded"
	OutcomeError      = "error"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	ChunksIngested   prometheus.Counter
	ChunkFailures    *prometheus.CounterVec
	Questions        *prometheus.CounterVec
	EmbedSeconds     prometheus.Histogram
	RetrievalSeconds prometheus.Histogram
	IndexEntries     prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime collector, on a fresh registry.
func New() *Metrics {
	buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edurag",
			Name:      "chunks_ingested_total",
			Help:      "Chunks embedded and inserted into the index.",
		}),
		ChunkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edurag",
			Name:      "chunk_failures_total",
			Help:      "Chunks that could not be indexed, by reason.",
		}, []string{"reason"}),
		Questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edurag",
			Name:      "questions_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		EmbedSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edurag",
			Name:      "embed_duration_seconds",
			Help:      "Latency of embedding a single text through the gateway.",
			Buckets:   buckets,
		}),
		RetrievalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edurag",
			Name:      "retrieval_duration_seconds",
			Help:      "Latency of ranking the index against a query embedding.",
			Buckets:   buckets,
		}),
		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edurag",
			Name:      "index_entries",
			Help:      "Entries currently held by the vector index.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.ChunksIngested,
		m.ChunkFailures,
		m.Questions,
		m.EmbedSeconds,
		m.RetrievalSeconds,
		m.IndexEntries,
	)
	return m
}

// Registry exposes the private registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuestion counts a question by outcome.
func (m *Metrics) ObserveQuestion(outcome string) {
	m.Questions.WithLabelValues(outcome).Inc()
}

// ObserveEmbed records the latency of one gateway call. Its signature
// matches embedding.GatewayConfig.Observe.
func (m *Metrics) ObserveEmbed(elapsed time.Duration, _ error) {
	m.EmbedSeconds.Observe(elapsed.Seconds())
}

// Since records the time elapsed from start in h.
func Since(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
