package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state gauge values.
const (
	BreakerStateClosed   = 0
	BreakerStateHalfOpen = 1
	BreakerStateOpen     = 2
)

// Metrics contains all Prometheus metrics for the paper search engine.
// Metrics are organized by subsystem: searches, providers, breakers, cache,
// dedup, ranking, ingestion, batches and model calls. All metrics are
// registered via promauto with the default Prometheus registry.
//
// Every Record method is a no-op on a nil receiver.
type Metrics struct {
	// SearchesStarted counts federated searches initiated.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts federated searches that returned a result.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts federated searches that returned an error.
	SearchesFailed prometheus.Counter

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// ResultsPerSearch observes the number of ranked papers returned per search.
	ResultsPerSearch prometheus.Histogram

	// ProviderCalls counts wrapped provider calls, labeled by source and outcome
	// (success, failure, skipped, cancelled).
	ProviderCalls *prometheus.CounterVec

	// ProviderCallDuration observes wrapped provider call duration in seconds, labeled by source.
	ProviderCallDuration *prometheus.HistogramVec

	// ProviderRetries counts retry attempts, labeled by source and error category.
	ProviderRetries *prometheus.CounterVec

	// ProviderRateLimited counts rate-limited responses, labeled by source.
	ProviderRateLimited *prometheus.CounterVec

	// PapersBySource counts raw candidates returned, labeled by source.
	PapersBySource *prometheus.CounterVec

	// BreakerState reports the breaker state per source (0 closed, 1 half-open, 2 open).
	BreakerState *prometheus.GaugeVec

	// BreakerTransitions counts breaker transitions, labeled by source and target state.
	BreakerTransitions *prometheus.CounterVec

	// CacheHits counts result cache hits, labeled by source.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts result cache misses, labeled by source.
	CacheMisses *prometheus.CounterVec

	// CacheEvictions counts entries evicted for capacity.
	CacheEvictions prometheus.Counter

	// PapersDuplicate counts candidates discarded as duplicates.
	PapersDuplicate prometheus.Counter

	// SiblingLinks counts preprint/journal sibling links created.
	SiblingLinks prometheus.Counter

	// RankingStrategy counts rankings, labeled by strategy (lexical, semantic).
	RankingStrategy *prometheus.CounterVec

	// PapersIngested counts papers newly persisted.
	PapersIngested prometheus.Counter

	// PapersReused counts ingestions that reused an existing paper.
	PapersReused prometheus.Counter

	// IngestionFailed counts ingestions that failed.
	IngestionFailed prometheus.Counter

	// FullTextExtracted counts successful PDF text extractions.
	FullTextExtracted prometheus.Counter

	// IngestionDuration observes per-paper ingestion duration in seconds.
	IngestionDuration prometheus.Histogram

	// BatchQueries counts queries processed by batch runs.
	BatchQueries prometheus.Counter

	// BatchDelayEscalations counts inter-query delay escalations after rate limits.
	BatchDelayEscalations prometheus.Counter

	// EventsPublished counts published events, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts events that could not be published, labeled by event type.
	EventsFailed *prometheus.CounterVec

	// ModelRequestsTotal counts embedding and LLM requests, labeled by operation and model.
	ModelRequestsTotal *prometheus.CounterVec

	// ModelRequestsFailed counts failed model requests, labeled by operation and model.
	ModelRequestsFailed *prometheus.CounterVec

	// ModelRequestDuration observes model request duration in seconds, labeled by operation and model.
	ModelRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of federated searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of federated searches completed",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of federated searches that failed",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of federated searches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Number of ranked papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),

		// Providers
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of wrapped provider calls by outcome",
		}, []string{"source", "outcome"}),
		ProviderCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of wrapped provider calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"source"}),
		ProviderRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of provider call retries by error category",
		}, []string{"source", "category"}),
		ProviderRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_rate_limited_total",
			Help:      "Total number of rate-limited provider responses",
		}, []string{"source"}),
		PapersBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of raw candidates returned by source",
		}, []string{"source"}),

		// Breakers
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per source (0 closed, 1 half-open, 2 open)",
		}, []string{"source"}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker transitions by target state",
		}, []string{"source", "state"}),

		// Cache
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		}, []string{"source"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		}, []string{"source"}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of result cache entries evicted for capacity",
		}),

		// Dedup and ranking
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate candidates discarded",
		}),
		SiblingLinks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sibling_links_total",
			Help:      "Total number of preprint/journal sibling links created",
		}),
		RankingStrategy: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rankings_total",
			Help:      "Total number of rankings by strategy",
		}, []string{"strategy"}),

		// Ingestion
		PapersIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_ingested_total",
			Help:      "Total number of papers newly persisted",
		}),
		PapersReused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_reused_total",
			Help:      "Total number of ingestions that reused an existing paper",
		}),
		IngestionFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_failed_total",
			Help:      "Total number of failed paper ingestions",
		}),
		FullTextExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "full_text_extracted_total",
			Help:      "Total number of successful PDF text extractions",
		}),
		IngestionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of per-paper ingestion in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Batches
		BatchQueries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_queries_total",
			Help:      "Total number of queries processed by batch runs",
		}),
		BatchDelayEscalations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_delay_escalations_total",
			Help:      "Total number of inter-query delay escalations after rate limits",
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events that failed to publish",
		}, []string{"event_type"}),

		// Models
		ModelRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of embedding and LLM requests",
		}, []string{"operation", "model"}),
		ModelRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_failed_total",
			Help:      "Total number of failed embedding and LLM requests",
		}, []string{"operation", "model"}),
		ModelRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Duration of embedding and LLM requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation", "model"}),
	}
}

// RecordSearchStarted records that a federated search has started.
func (m *Metrics) RecordSearchStarted() {
	if m == nil {
		return
	}
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records a completed search and its result count.
func (m *Metrics) RecordSearchCompleted(resultCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.ResultsPerSearch.Observe(float64(resultCount))
}

// RecordSearchFailed records a failed search.
func (m *Metrics) RecordSearchFailed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordProviderCall records the outcome of one wrapped provider call.
func (m *Metrics) RecordProviderCall(source, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(source, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordProviderRetry records one retry attempt.
func (m *Metrics) RecordProviderRetry(source, category string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(source, category).Inc()
}

// RecordProviderRateLimited records a rate-limited provider response.
func (m *Metrics) RecordProviderRateLimited(source string) {
	if m == nil {
		return
	}
	m.ProviderRateLimited.WithLabelValues(source).Inc()
}

// RecordPapersFound records raw candidates returned by a source.
func (m *Metrics) RecordPapersFound(source string, count int) {
	if m == nil {
		return
	}
	m.PapersBySource.WithLabelValues(source).Add(float64(count))
}

// RecordBreakerTransition records a breaker state change.
func (m *Metrics) RecordBreakerTransition(source, state string, gauge float64) {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues(source, state).Inc()
	m.BreakerState.WithLabelValues(source).Set(gauge)
}

// RecordCacheHit records a result cache hit.
func (m *Metrics) RecordCacheHit(source string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(source).Inc()
}

// RecordCacheMiss records a result cache miss.
func (m *Metrics) RecordCacheMiss(source string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(source).Inc()
}

// RecordCacheEviction records a capacity eviction.
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// RecordDedup records duplicates discarded and sibling links created.
func (m *Metrics) RecordDedup(duplicates, siblingLinks int) {
	if m == nil {
		return
	}
	m.PapersDuplicate.Add(float64(duplicates))
	m.SiblingLinks.Add(float64(siblingLinks))
}

// RecordRanking records which ranking strategy produced a result.
func (m *Metrics) RecordRanking(strategy string) {
	if m == nil {
		return
	}
	m.RankingStrategy.WithLabelValues(strategy).Inc()
}

// RecordPaperIngested records a newly persisted paper.
func (m *Metrics) RecordPaperIngested(durationSeconds float64) {
	if m == nil {
		return
	}
	m.PapersIngested.Inc()
	m.IngestionDuration.Observe(durationSeconds)
}

// RecordPaperReused records an ingestion that reused an existing paper.
func (m *Metrics) RecordPaperReused() {
	if m == nil {
		return
	}
	m.PapersReused.Inc()
}

// RecordIngestionFailed records a failed ingestion.
func (m *Metrics) RecordIngestionFailed() {
	if m == nil {
		return
	}
	m.IngestionFailed.Inc()
}

// RecordFullTextExtracted records a successful PDF text extraction.
func (m *Metrics) RecordFullTextExtracted() {
	if m == nil {
		return
	}
	m.FullTextExtracted.Inc()
}

// RecordBatchQuery records one processed batch query.
func (m *Metrics) RecordBatchQuery() {
	if m == nil {
		return
	}
	m.BatchQueries.Inc()
}

// RecordBatchDelayEscalation records an inter-query delay escalation.
func (m *Metrics) RecordBatchDelayEscalation() {
	if m == nil {
		return
	}
	m.BatchDelayEscalations.Inc()
}

// RecordEventPublished records a published event.
func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records an event that failed to publish.
func (m *Metrics) RecordEventFailed(eventType string) {
	if m == nil {
		return
	}
	m.EventsFailed.WithLabelValues(eventType).Inc()
}

// RecordModelRequest records an embedding or LLM request.
func (m *Metrics) RecordModelRequest(operation, model string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ModelRequestsTotal.WithLabelValues(operation, model).Inc()
	m.ModelRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
}

// RecordModelRequestFailed records a failed embedding or LLM request.
func (m *Metrics) RecordModelRequestFailed(operation, model string) {
	if m == nil {
		return
	}
	m.ModelRequestsFailed.WithLabelValues(operation, model).Inc()
}
