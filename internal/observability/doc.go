// Package observability provides logging, metrics, and context propagation
// for the paper search engine.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, providers, caching, ranking and ingestion
//   - Context helpers for propagating request identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("query", q).Msg("search started")
//
// Add search context to logger:
//
//	logger = observability.WithSearchContext(logger, query, "openalex")
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paper_search")
//
// Record metrics:
//
//	metrics.RecordProviderCall("openalex", "success", 0.42)
//	metrics.RecordCacheHit("openalex")
//	metrics.RecordPaperIngested()
//
// All Record methods are no-ops on a nil *Metrics, so components accept an
// optional metrics pointer.
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	reqID := observability.RequestIDFromContext(ctx)
//	logger := observability.LoggerWithContext(ctx, base)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP or batch request identifier
//   - correlation_id: identifier shared by every query of a batch
//   - query: the user's search text
//   - source: paper provider (semantic_scholar, openalex, etc.)
//   - paper_id: persisted paper identifier
//   - canonical_id: content-derived paper identity
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
