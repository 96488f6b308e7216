// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocsGenerated counts documents that reached COMPLETED.
	DocsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rocketdocs_docs_generated_total",
		Help: "Documents generated successfully.",
	})

	// DocsFailed counts documents that reached FAILED.
	DocsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rocketdocs_docs_failed_total",
		Help: "Documents whose generation failed.",
	})

	// LLMTokens counts tokens spent on LLM calls, by direction.
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rocketdocs_llm_tokens_total",
		Help: "Tokens consumed by LLM calls.",
	}, []string{"direction"})

	// VectorsUpserted counts vectors written to the index.
	VectorsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rocketdocs_vectors_upserted_total",
		Help: "Vectors upserted into the vector index.",
	})

	// Searches counts semantic search requests.
	Searches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rocketdocs_searches_total",
		Help: "Semantic search queries served.",
	})

	// GenerationDuration observes per-document generation latency.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rocketdocs_generation_duration_seconds",
		Help:    "Wall-clock duration of one document generation.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUsage records prompt and completion token counts.
func ObserveUsage(promptTokens, completionTokens int) {
	LLMTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	LLMTokens.WithLabelValues("completion").Add(float64(completionTokens))
}
