// Package metrics holds the Prometheus collectors for ingestion and chat.
// Collectors live on a package registry so tests and the CLI never touch
// the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// File outcomes recorded by IngestFiles.
const (
	FileIndexed = "indexed"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

// Registry holds every ragbot collector plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// IngestFiles counts processed files by status.
	IngestFiles = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_ingest_files_total",
			Help: "Files processed by ingestion, by status",
		},
		[]string{"status"},
	)

	// IngestChunks counts chunks written to the vector store.
	IngestChunks = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "ragbot_ingest_chunks_total",
			Help: "Chunks embedded and upserted",
		},
	)

	// EmbedBatch observes the latency of one embedding batch.
	EmbedBatch = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragbot_embed_batch_seconds",
			Help:    "Embedding batch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// LLMRequests counts Generate calls by outcome.
	LLMRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_llm_requests_total",
			Help: "LLM generate calls, by outcome",
		},
		[]string{"outcome"},
	)

	// LLMDuration observes the full Generate latency including retries.
	LLMDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragbot_llm_request_seconds",
			Help:    "LLM generate duration in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveLLM records one Generate call. Its signature matches the
// resilient LLM observer.
func ObserveLLM(outcome string, elapsed time.Duration) {
	LLMRequests.WithLabelValues(outcome).Inc()
	LLMDuration.Observe(elapsed.Seconds())
}

// ObserveEmbedBatch records the duration of a batch started at start.
func ObserveEmbedBatch(start time.Time) {
	EmbedBatch.Observe(time.Since(start).Seconds())
}

// CountFile records a processed file.
func CountFile(status string) {
	IngestFiles.WithLabelValues(status).Inc()
}

// AddChunks records chunks written.
func AddChunks(n int) {
	IngestChunks.Add(float64(n))
}

// IngestRecorder forwards ingestion counters to the package collectors.
type IngestRecorder struct{}

// CountFile records a processed file.
func (IngestRecorder) CountFile(status string) { CountFile(status) }

// AddChunks records chunks written.
func (IngestRecorder) AddChunks(n int) { AddChunks(n) }

// ObserveEmbedBatch records one embedding batch.
func (IngestRecorder) ObserveEmbedBatch(start time.Time) { ObserveEmbedBatch(start) }

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
