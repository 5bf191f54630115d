// Package search is the federated search engine: it fans a query out to
// every enabled provider, merges and de-duplicates what comes back, ranks
// it and optionally hands the top papers to ingestion.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/cache"
	"github.com/helixir/paper-search-engine/internal/dedup"
	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/expansion"
	"github.com/helixir/paper-search-engine/internal/observability"
	"github.com/helixir/paper-search-engine/internal/papersources"
	"github.com/helixir/paper-search-engine/internal/ranking"
	"github.com/helixir/paper-search-engine/internal/resilience"
)

// Ingester persists ranked papers and returns their ids.
type Ingester interface {
	IngestAll(ctx context.Context, papers []domain.RankedPaper) ([]string, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// ProviderOutcome reports what one provider contributed to a search.
type ProviderOutcome struct {
	Source      domain.SourceType `json:"source"`
	Papers      int               `json:"papers"`
	Cached      bool              `json:"cached"`
	RateLimited bool              `json:"rate_limited"`
	Error       string            `json:"error,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
}

// Response is the full result of one search.
type Response struct {
	Query       string               `json:"query"`
	Expansions  []string             `json:"expansions"`
	Papers      []domain.RankedPaper `json:"papers"`
	Providers   []ProviderOutcome    `json:"providers"`
	Candidates  int                  `json:"candidates"`
	Duplicates  int                  `json:"duplicates"`
	Strategy    ranking.Strategy     `json:"strategy"`
	RateLimited bool                 `json:"rate_limited"`
	Duration    time.Duration        `json:"duration_ns"`
}

// IngestResponse is the result of SearchAndIngest.
type IngestResponse struct {
	*Response
	IngestedIDs []string `json:"ingested_ids"`
}

// Engine runs searches. It is safe for concurrent use; provider health
// and the result cache are shared by every search.
type Engine struct {
	cfg      Config
	registry *papersources.Registry
	wrapper  *resilience.Wrapper
	results  *cache.ResultCache
	expander *expansion.Expander
	ranker   *ranking.Ranker

	ingester  Ingester
	publisher EventPublisher
	logger    zerolog.Logger
	metrics   *observability.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithIngester enables SearchAndIngest and BatchSearchAndIngest.
func WithIngester(i Ingester) Option {
	return func(e *Engine) { e.ingester = i }
}

// WithPublisher emits a batch-completed event after each batch.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records search metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSleep replaces the inter-query wait of batches.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// NewEngine wires an Engine. A nil cache disables caching; a nil expander
// sends the query unchanged.
func NewEngine(
	cfg Config,
	registry *papersources.Registry,
	wrapper *resilience.Wrapper,
	results *cache.ResultCache,
	expander *expansion.Expander,
	ranker *ranking.Ranker,
	opts ...Option,
) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		wrapper:  wrapper,
		results:  results,
		expander: expander,
		ranker:   ranker,
		logger:   zerolog.Nop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "search_engine").Logger()
	return e
}

// Providers returns the enabled providers and their breaker health, in
// priority order.
func (e *Engine) Providers() []domain.ProviderHealth {
	types := e.registry.SourceTypes()
	out := make([]domain.ProviderHealth, len(types))
	for i, st := range types {
		out[i] = e.wrapper.Health().Health(st)
	}
	return out
}

// Search returns the ranked papers for query, at most opts.ResultCount().
func (e *Engine) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedPaper, error) {
	resp, err := e.Run(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return resp.Papers, nil
}

// Run searches every enabled provider concurrently and returns the ranked,
// de-duplicated result with per-provider outcomes. Provider failures never
// fail the search; zero results is an empty list and a nil error.
func (e *Engine) Run(ctx context.Context, query string, opts domain.SearchOptions) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", "is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	e.metrics.RecordSearchStarted()
	logger := observability.LoggerWithContext(ctx, e.logger).With().Str("query", query).Logger()

	expansions := []string{query}
	if e.expander != nil {
		expansions = e.expander.Expand(ctx, query)
	}
	primary := expansions[0]

	candidates, outcomes := e.fanOut(ctx, primary, opts)
	if err := ctx.Err(); err != nil {
		e.metrics.RecordSearchFailed(time.Since(start).Seconds())
		return nil, err
	}

	resp := &Response{
		Query:      query,
		Expansions: expansions,
		Providers:  outcomes,
		Candidates: len(candidates),
	}
	for _, o := range outcomes {
		resp.RateLimited = resp.RateLimited || o.RateLimited
	}

	ranked, err := e.rank(ctx, primary, opts, candidates, resp)
	if err != nil {
		e.metrics.RecordSearchFailed(time.Since(start).Seconds())
		logger.Error().Err(err).Msg("search failed")
		return nil, err
	}
	resp.Papers = ranked
	resp.Duration = time.Since(start)

	e.metrics.RecordSearchCompleted(len(ranked), resp.Duration.Seconds())
	logger.Info().
		Int("providers", len(outcomes)).
		Int("candidates", resp.Candidates).
		Int("duplicates", resp.Duplicates).
		Int("results", len(ranked)).
		Str("strategy", string(resp.Strategy)).
		Dur("duration", resp.Duration).
		Msg("search completed")
	return resp, nil
}

// rank de-duplicates, filters and ranks candidates. A panic in these pure
// steps is a defect and is reported as domain.ErrInternalError.
func (e *Engine) rank(ctx context.Context, query string, opts domain.SearchOptions, candidates []*domain.Paper, resp *Response) (ranked []domain.RankedPaper, err error) {
	defer func() {
		if r := recover(); r != nil {
			ranked, err = nil, fmt.Errorf("%w: ranking candidates: %v", domain.ErrInternalError, r)
		}
	}()

	unique, stats := dedup.DeduplicateStats(candidates)
	e.metrics.RecordDedup(stats.Duplicates, stats.SiblingLinks)
	resp.Duplicates = stats.Duplicates

	unique = filterYears(unique, opts.YearFrom, opts.YearTo)
	ranked, resp.Strategy = e.ranker.RankWithStrategy(ctx, query, unique)
	if n := opts.ResultCount(); len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// fanOut runs one wrapped, cached call per provider and waits for all of
// them. Outcomes follow provider priority order.
func (e *Engine) fanOut(ctx context.Context, query string, opts domain.SearchOptions) ([]*domain.Paper, []ProviderOutcome) {
	sources := e.registry.Resolve(opts.Sources)
	params := papersources.ParamsFromOptions(query, opts)

	outcomes := make([]ProviderOutcome, len(sources))
	results := make([][]*domain.Paper, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], outcomes[i] = e.searchSource(ctx, src, query, params, opts)
		}()
	}
	wg.Wait()

	var all []*domain.Paper
	for _, papers := range results {
		all = append(all, papers...)
	}
	return all, outcomes
}

func (e *Engine) searchSource(ctx context.Context, src papersources.PaperSource, query string, params papersources.SearchParams, opts domain.SearchOptions) ([]*domain.Paper, ProviderOutcome) {
	st := src.SourceType()
	outcome := ProviderOutcome{Source: st}
	start := time.Now()

	var key cache.Key
	if e.results != nil {
		key = cache.NewKey(st, query, opts.Fingerprint())
		if papers, ok := e.results.Get(key); ok {
			outcome.Cached = true
			outcome.Papers = len(papers)
			outcome.Duration = time.Since(start)
			return papers, outcome
		}
	}

	var rateLimited atomic.Bool
	papers, err := e.wrapper.Call(ctx, st, opts.FastMode, func(ctx context.Context) ([]*domain.Paper, error) {
		res, err := src.Search(ctx, params)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				rateLimited.Store(true)
			}
			return nil, err
		}
		if res == nil {
			return []*domain.Paper{}, nil
		}
		return res.Papers, nil
	})
	outcome.RateLimited = rateLimited.Load()
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Error = err.Error()
		if ctx.Err() == nil {
			e.logger.Warn().
				Err(err).
				Str("source", string(st)).
				Bool("rate_limited", outcome.RateLimited).
				Msg("provider contributed no records")
		}
		return nil, outcome
	}

	papers = withoutNil(papers)
	outcome.Papers = len(papers)
	e.metrics.RecordPapersFound(string(st), len(papers))
	if e.results != nil {
		e.results.Put(key, papers)
	}
	return papers, outcome
}

// SearchAndIngest searches and then ingests every returned paper.
func (e *Engine) SearchAndIngest(ctx context.Context, query string, opts domain.SearchOptions) (*IngestResponse, error) {
	if e.ingester == nil {
		return nil, fmt.Errorf("%w: ingestion is not configured", domain.ErrServiceUnavailable)
	}

	resp, err := e.Run(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	ids, err := e.ingester.IngestAll(ctx, resp.Papers)
	if err != nil {
		return nil, fmt.Errorf("ingest results: %w", err)
	}
	return &IngestResponse{Response: resp, IngestedIDs: ids}, nil
}

func withoutNil(papers []*domain.Paper) []*domain.Paper {
	out := papers[:0:0]
	for _, p := range papers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// filterYears drops papers with a known year outside [from, to].
// Zero bounds and unknown years pass.
func filterYears(papers []domain.RankedPaper, from, to int) []domain.RankedPaper {
	if from == 0 && to == 0 {
		return papers
	}
	out := papers[:0]
	for _, p := range papers {
		if p.Year != 0 && ((from != 0 && p.Year < from) || (to != 0 && p.Year > to)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
