// Package app assembles the search engine and its collaborators from the
// service configuration. Every binary builds its dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/cache"
	"github.com/helixir/paper-search-engine/internal/config"
	"github.com/helixir/paper-search-engine/internal/database"
	"github.com/helixir/paper-search-engine/internal/embedding"
	"github.com/helixir/paper-search-engine/internal/events"
	"github.com/helixir/paper-search-engine/internal/expansion"
	"github.com/helixir/paper-search-engine/internal/ingestion"
	"github.com/helixir/paper-search-engine/internal/observability"
	"github.com/helixir/paper-search-engine/internal/papersources"
	"github.com/helixir/paper-search-engine/internal/papersources/arxiv"
	"github.com/helixir/paper-search-engine/internal/papersources/biorxiv"
	"github.com/helixir/paper-search-engine/internal/papersources/openalex"
	"github.com/helixir/paper-search-engine/internal/papersources/pubmed"
	"github.com/helixir/paper-search-engine/internal/papersources/scopus"
	"github.com/helixir/paper-search-engine/internal/papersources/semanticscholar"
	"github.com/helixir/paper-search-engine/internal/papersources/unpaywall"
	"github.com/helixir/paper-search-engine/internal/pdf"
	"github.com/helixir/paper-search-engine/internal/qdrant"
	"github.com/helixir/paper-search-engine/internal/ranking"
	"github.com/helixir/paper-search-engine/internal/repository"
	"github.com/helixir/paper-search-engine/internal/resilience"
	"github.com/helixir/paper-search-engine/internal/search"
)

// App holds the assembled engine and the resources that must be closed.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// DB and Papers are nil when the database is disabled.
	DB     *database.DB
	Papers *repository.PgPaperRepository

	Registry *papersources.Registry
	Engine   *search.Engine

	// Publisher is nil when Kafka is disabled.
	Publisher *events.Publisher

	closers []func() error
}

// New builds the engine described by cfg. The database, Kafka publisher,
// LLM rewriter, embedder and vector index are only created when enabled.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}

	if err := a.build(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to release resources after startup error")
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.DB = db
		a.onClose(func() error { db.Close(); return nil })
		a.Papers = repository.NewPgPaperRepository(db, a.Logger)
	}

	if cfg.Kafka.Enabled {
		a.Publisher = events.NewPublisher(events.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, a.Logger)
		a.onClose(a.Publisher.Close)
	}

	a.Registry = NewRegistry(cfg.PaperSources)

	health := resilience.NewHealthStore(resilience.HealthConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Cooldown:         cfg.Resilience.Cooldown,
	}, resilience.WithHealthLogger(a.Logger), resilience.WithHealthMetrics(a.Metrics))

	wrapper := resilience.NewWrapper(resilience.Config{
		Timeout:     cfg.Resilience.Timeout,
		FastTimeout: cfg.Resilience.FastTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts:       cfg.Resilience.MaxAttempts,
			InitialBackoff:    cfg.Resilience.InitialBackoff,
			BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
			MaxBackoff:        cfg.Resilience.MaxBackoff,
			MaxRetryAfter:     cfg.Resilience.MaxRetryAfter,
		},
	}, health, resilience.WithLogger(a.Logger), resilience.WithMetrics(a.Metrics))

	var results *cache.ResultCache
	if cfg.Cache.Enabled {
		results = cache.New(cache.Config{
			TTL:      cfg.Cache.TTL,
			Capacity: cfg.Cache.Capacity,
		}, cache.WithMetrics(a.Metrics))
	}

	expanderOpts := []expansion.Option{expansion.WithLogger(a.Logger)}
	if cfg.Expansion.UseLLM && cfg.LLM.APIKey != "" {
		rewriter, err := expansion.NewLLMRewriter(ctx, expansion.LLMConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: float32(cfg.LLM.Temperature),
			Timeout:     cfg.LLM.Timeout,
		}, a.Metrics)
		if err != nil {
			return fmt.Errorf("create query rewriter: %w", err)
		}
		expanderOpts = append(expanderOpts, expansion.WithRewriter(rewriter))
	}
	expander := expansion.New(expansion.Config{
		MaxVariants:     cfg.Expansion.MaxVariants,
		Synonyms:        cfg.Expansion.Synonyms,
		DisableSynonyms: cfg.Expansion.DisableSynonyms,
	}, expanderOpts...)

	embedder, err := a.buildEmbedder(ctx)
	if err != nil {
		return err
	}

	rankerOpts := []ranking.Option{ranking.WithLogger(a.Logger), ranking.WithMetrics(a.Metrics)}
	if cfg.Ranking.Semantic && embedder != nil {
		rankerOpts = append(rankerOpts, ranking.WithEmbedder(embedder))
	}
	ranker := ranking.New(ranking.Config{
		Weights: ranking.Weights{
			Relevance: cfg.Ranking.RelevanceWeight,
			Authority: cfg.Ranking.AuthorityWeight,
			Recency:   cfg.Ranking.RecencyWeight,
		},
		BM25: ranking.BM25Params{
			K1:          cfg.Ranking.BM25K1,
			B:           cfg.Ranking.BM25B,
			TitleWeight: cfg.Ranking.TitleWeight,
		},
		Semantic: ranking.SemanticConfig{
			MinCandidates: cfg.Ranking.SemanticMinCandidates,
			MinSimilarity: cfg.Ranking.SemanticMinSimilarity,
		},
	}, rankerOpts...)

	engineOpts := []search.Option{search.WithLogger(a.Logger), search.WithMetrics(a.Metrics)}
	if a.Publisher != nil {
		engineOpts = append(engineOpts, search.WithPublisher(a.Publisher))
	}
	if a.Papers != nil {
		pipeline, err := a.buildPipeline(ctx, embedder)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, search.WithIngester(pipeline))
	}

	a.Engine = search.NewEngine(search.Config{
		Batch: search.BatchConfig{
			BaseDelay:  cfg.Batch.BaseDelay,
			Multiplier: cfg.Batch.Multiplier,
			MaxDelay:   cfg.Batch.MaxDelay,
			MaxQueries: cfg.Batch.MaxQueries,
		},
	}, a.Registry, wrapper, results, expander, ranker, engineOpts...)

	return nil
}

// buildEmbedder returns nil when no embedding key is configured.
func (a *App) buildEmbedder(ctx context.Context) (embedding.Embedder, error) {
	ecfg := embedding.Config{
		APIKey:     a.Config.Embedding.APIKey,
		Model:      a.Config.Embedding.Model,
		BaseURL:    a.Config.Embedding.BaseURL,
		Dimensions: a.Config.Embedding.Dimensions,
		BatchSize:  a.Config.Embedding.BatchSize,
		CacheSize:  a.Config.Embedding.CacheSize,
		Timeout:    a.Config.Embedding.Timeout,
	}
	if !ecfg.Enabled() {
		return nil, nil
	}
	inner, err := embedding.NewOpenAIEmbedder(ctx, ecfg, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedding.NewCachedEmbedder(inner, ecfg.CacheSize), nil
}

func (a *App) buildPipeline(ctx context.Context, embedder embedding.Embedder) (*ingestion.Pipeline, error) {
	cfg := a.Config
	opts := []ingestion.Option{
		ingestion.WithLogger(a.Logger),
		ingestion.WithMetrics(a.Metrics),
		ingestion.WithReferenceFetchers(a.Registry.ReferenceFetchers()...),
	}

	if cfg.PDF.Enabled {
		downloader := pdf.NewDownloader(pdf.Config{
			Timeout:              cfg.PDF.Timeout,
			MaxSize:              cfg.PDF.MaxSize,
			UserAgent:            cfg.PDF.UserAgent,
			AllowPrivateNetworks: cfg.PDF.AllowPrivateNetworks,
		})
		opts = append(opts, ingestion.WithExtractor(pdf.NewExtractor(downloader, pdf.ExtractorConfig{
			MaxPages: cfg.PDF.MaxPages,
			MaxChars: cfg.PDF.MaxChars,
		}, a.Logger)))
	}

	if uw := cfg.PaperSources.Unpaywall; uw.Enabled {
		opts = append(opts, ingestion.WithPDFResolver(unpaywall.New(unpaywall.Config{
			BaseURL:            uw.BaseURL,
			Email:              uw.Email,
			Timeout:            uw.Timeout,
			RateLimit:          uw.RateLimit,
			ScrapeLandingPages: uw.ScrapeLandingPages,
		})))
	}

	if cfg.Qdrant.Enabled && embedder != nil {
		index, err := qdrant.NewClient(qdrant.Config{
			Address:        cfg.Qdrant.Address,
			CollectionName: cfg.Qdrant.CollectionName,
			VectorSize:     cfg.Qdrant.VectorSize,
			APIKey:         cfg.Qdrant.APIKey,
			UseTLS:         cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant: %w", err)
		}
		a.onClose(index.Close)
		if err := index.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure qdrant collection: %w", err)
		}
		opts = append(opts, ingestion.WithVectorIndex(embedder, index))
	}

	if a.Publisher != nil {
		opts = append(opts, ingestion.WithPublisher(a.Publisher))
	}

	return ingestion.NewPipeline(ingestion.Config{
		ChunkMaxChars:   cfg.Ingestion.ChunkMaxChars,
		ChunkOverlap:    cfg.Ingestion.ChunkOverlap,
		Concurrency:     cfg.Ingestion.Concurrency,
		ExtractTimeout:  cfg.Ingestion.ExtractTimeout,
		PaperTimeout:    cfg.Ingestion.PaperTimeout,
		FetchReferences: cfg.Ingestion.FetchReferences,
		MaxReferences:   cfg.Ingestion.MaxReferences,
	}, a.Papers, opts...), nil
}

// NewRegistry registers an adapter for every provider in cfg. Disabled
// providers are registered too so they appear in health listings.
func NewRegistry(cfg config.PaperSourcesConfig) *papersources.Registry {
	registry := papersources.NewRegistry()

	registry.Register(semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:    cfg.SemanticScholar.BaseURL,
		APIKey:     cfg.SemanticScholar.APIKey,
		Timeout:    cfg.SemanticScholar.Timeout,
		RateLimit:  cfg.SemanticScholar.RateLimit,
		MaxResults: cfg.SemanticScholar.MaxResults,
		Enabled:    cfg.SemanticScholar.Enabled,
	}, nil))
	registry.Register(openalex.New(openalex.Config{
		BaseURL:    cfg.OpenAlex.BaseURL,
		Email:      cfg.OpenAlex.Email,
		Timeout:    cfg.OpenAlex.Timeout,
		RateLimit:  cfg.OpenAlex.RateLimit,
		MaxResults: cfg.OpenAlex.MaxResults,
		Enabled:    cfg.OpenAlex.Enabled,
	}))
	registry.Register(scopus.New(scopus.Config{
		BaseURL:    cfg.Scopus.BaseURL,
		APIKey:     cfg.Scopus.APIKey,
		Timeout:    cfg.Scopus.Timeout,
		RateLimit:  cfg.Scopus.RateLimit,
		MaxResults: cfg.Scopus.MaxResults,
		Enabled:    cfg.Scopus.Enabled,
	}))
	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Email:      cfg.PubMed.Email,
		Timeout:    cfg.PubMed.Timeout,
		RateLimit:  cfg.PubMed.RateLimit,
		MaxResults: cfg.PubMed.MaxResults,
		Enabled:    cfg.PubMed.Enabled,
	}))
	registry.Register(biorxiv.New(biorxiv.Config{
		BaseURL:    cfg.BioRxiv.BaseURL,
		Timeout:    cfg.BioRxiv.Timeout,
		RateLimit:  cfg.BioRxiv.RateLimit,
		MaxResults: cfg.BioRxiv.MaxResults,
		Enabled:    cfg.BioRxiv.Enabled,
	}))
	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		RateLimit:  cfg.ArXiv.RateLimit,
		MaxResults: cfg.ArXiv.MaxResults,
		Enabled:    cfg.ArXiv.Enabled,
	}))

	return registry
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every resource in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoggingConfig maps the logging section onto the logger constructor.
func LoggingConfig(cfg config.LoggingConfig) observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: cfg.TimeFormat,
	}
}
