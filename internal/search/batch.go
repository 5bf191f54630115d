package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// BatchResult is the outcome of one query of a batch. Error is set when
// the query failed; the batch itself carries on.
type BatchResult struct {
	Query       string               `json:"query"`
	Papers      []domain.RankedPaper `json:"papers"`
	IngestedIDs []string             `json:"ingested_ids"`
	RateLimited bool                 `json:"rate_limited"`
	Error       string               `json:"error,omitempty"`
}

// BatchSearchAndIngest runs SearchAndIngest for each query in order,
// pausing between queries. Once any query sees a provider rate limit the
// pause grows for the rest of the batch. Per-query failures are reported
// in the result; only cancellation aborts the batch.
func (e *Engine) BatchSearchAndIngest(ctx context.Context, queries []string, opts domain.SearchOptions) ([]BatchResult, error) {
	if e.ingester == nil {
		return nil, fmt.Errorf("%w: ingestion is not configured", domain.ErrServiceUnavailable)
	}
	if len(queries) == 0 {
		return nil, domain.NewValidationError("queries", "at least one query is required")
	}
	if len(queries) > e.cfg.Batch.MaxQueries {
		return nil, domain.NewValidationError("queries",
			fmt.Sprintf("at most %d queries per batch", e.cfg.Batch.MaxQueries))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	correlationID := observability.CorrelationIDFromContext(ctx)
	summary := domain.BatchCompletedPayload{
		RequestID: correlationID,
		Queries:   len(queries),
	}

	results := make([]BatchResult, 0, len(queries))
	delay := e.cfg.Batch.BaseDelay
	for i, query := range queries {
		logger := observability.WithBatchContext(e.logger, correlationID, i, len(queries))

		if i > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				return results, fmt.Errorf("batch interrupted after %d of %d queries: %w", i, len(queries), err)
			}
		}

		e.metrics.RecordBatchQuery()
		result := BatchResult{Query: strings.TrimSpace(query)}
		resp, err := e.SearchAndIngest(ctx, query, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, fmt.Errorf("batch interrupted after %d of %d queries: %w", i, len(queries), ctxErr)
			}
			result.Error = err.Error()
			summary.Failed++
			logger.Warn().Err(err).Str("query", result.Query).Msg("batch query failed")
		} else {
			result.Papers = resp.Papers
			result.IngestedIDs = resp.IngestedIDs
			result.RateLimited = resp.RateLimited
			summary.PapersFound += len(resp.Papers)
			summary.PapersIngested += len(resp.IngestedIDs)
		}
		results = append(results, result)

		if result.RateLimited {
			summary.RateLimited = true
			next := e.cfg.Batch.escalate(delay)
			if next > delay {
				e.metrics.RecordBatchDelayEscalation()
				logger.Info().
					Dur("previous_delay", delay).
					Dur("delay", next).
					Msg("rate limit observed, lengthening inter-query delay")
			}
			delay = next
		}
	}

	summary.Duration = time.Since(start)
	e.logger.Info().
		Str("correlation_id", correlationID).
		Int("queries", summary.Queries).
		Int("failed", summary.Failed).
		Int("papers_found", summary.PapersFound).
		Int("papers_ingested", summary.PapersIngested).
		Bool("rate_limited", summary.RateLimited).
		Dur("duration", summary.Duration).
		Msg("batch completed")

	e.publishBatchCompleted(ctx, summary)
	return results, nil
}

func (e *Engine) publishBatchCompleted(ctx context.Context, summary domain.BatchCompletedPayload) {
	if e.publisher == nil {
		return
	}
	aggregateID := summary.RequestID
	if aggregateID == "" {
		aggregateID = "batch"
	}
	event, err := domain.NewEvent(domain.EventTypeBatchCompleted, aggregateID, summary)
	if err == nil {
		err = e.publisher.Publish(ctx, event)
	}
	if err != nil {
		e.metrics.RecordEventFailed(domain.EventTypeBatchCompleted)
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Msg("publish batch completed event")
		}
		return
	}
	e.metrics.RecordEventPublished(domain.EventTypeBatchCompleted)
}
