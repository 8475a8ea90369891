package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register with the default registry on package import; the
// server exposes them via promhttp.
var (
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoscan_sessions_total",
			Help: "Scan sessions by terminal status.",
		},
		[]string{"mode", "status"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memoscan_sessions_active",
			Help: "Currently running scan sessions.",
		},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoscan_fetches_total",
			Help: "Page fetch attempts by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	FetchFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoscan_fetch_fallbacks_total",
			Help: "Fetches that fell back from the primary to the browser backend.",
		},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memoscan_extraction_duration_seconds",
			Help:    "Duration of the extraction phase per session.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoscan_llm_calls_total",
			Help: "LLM completion calls by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	LLMTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoscan_llm_tokens_total",
			Help: "Total tokens reported by the LLM provider.",
		},
	)

	KeyResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoscan_key_results_total",
			Help: "Per-rubric-key analysis outcomes (valid, repaired, discarded, failed).",
		},
		[]string{"key", "status"},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoscan_cache_evictions_total",
			Help: "Entries evicted from the shared bounded cache.",
		},
	)

	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoscan_quota_rejections_total",
			Help: "Sessions rejected before start, by quota kind.",
		},
		[]string{"kind"},
	)
)
