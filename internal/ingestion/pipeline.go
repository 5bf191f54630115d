// Package ingestion persists ranked papers with their text chunks,
// references and embeddings. Concurrent ingestions of the same physical
// paper are collapsed into one.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/embedding"
	"github.com/helixir/paper-search-engine/internal/observability"
	"github.com/helixir/paper-search-engine/internal/papersources"
	"github.com/helixir/paper-search-engine/internal/qdrant"
)

// StoredPaper describes a paper already persisted.
type StoredPaper struct {
	ID          string
	HasFullText bool
}

// Store is the persistence capability the pipeline writes to.
type Store interface {
	// FindExisting returns the stored paper with the same canonical id or
	// DOI, or the same normalized title when paper has no DOI. It returns
	// nil when there is none.
	FindExisting(ctx context.Context, paper *domain.Paper) (*StoredPaper, error)
	// CreatePaper persists a new paper and its chunks and returns its id.
	CreatePaper(ctx context.Context, paper *domain.Paper, chunks []Chunk) (string, error)
	// ReplaceChunks swaps every chunk of a stored paper for chunks.
	ReplaceChunks(ctx context.Context, paperID string, chunks []Chunk) error
	// StoreReferences records the works a stored paper cites.
	StoreReferences(ctx context.Context, paperID string, refs []domain.Reference) error
}

// Extractor returns the plain text of the PDF at url.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// PDFResolver finds an open-access PDF URL for a DOI, "" when none is known.
type PDFResolver interface {
	ResolvePDF(ctx context.Context, doi string) (string, error)
}

// VectorStore indexes paper embeddings.
type VectorStore interface {
	Upsert(ctx context.Context, point qdrant.PaperPoint) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Config tunes the pipeline.
type Config struct {
	ChunkMaxChars   int           `mapstructure:"chunk_max_chars"`
	ChunkOverlap    int           `mapstructure:"chunk_overlap"`
	Concurrency     int           `mapstructure:"concurrency"`
	ExtractTimeout  time.Duration `mapstructure:"extract_timeout"`
	PaperTimeout    time.Duration `mapstructure:"paper_timeout"`
	FetchReferences bool          `mapstructure:"fetch_references"`
	MaxReferences   int           `mapstructure:"max_references"`
}

func (c *Config) applyDefaults() {
	if c.ChunkMaxChars <= 0 {
		c.ChunkMaxChars = 1200
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 90 * time.Second
	}
	if c.PaperTimeout <= 0 {
		c.PaperTimeout = 5 * time.Minute
	}
	if c.MaxReferences <= 0 {
		c.MaxReferences = 200
	}
}

// Result is the outcome of ingesting one paper.
type Result struct {
	PaperID     string `json:"paper_id"`
	CanonicalID string `json:"canonical_id"`
	Created     bool   `json:"created"`
	Reused      bool   `json:"reused"`
	FullText    bool   `json:"full_text"`
	Chunks      int    `json:"chunks"`
}

// Pipeline ingests ranked papers into a Store.
type Pipeline struct {
	cfg     Config
	store   Store
	chunker *Chunker
	lock    *KeyedLock[Result]

	extractor  Extractor
	resolver   PDFResolver
	references []papersources.ReferenceFetcher
	embedder   embedding.Embedder
	vectors    VectorStore
	publisher  EventPublisher

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor enables full-text extraction from PDFs.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithPDFResolver looks up PDF URLs for papers that have a DOI but no link.
func WithPDFResolver(r PDFResolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithReferenceFetchers stores cited works of new papers, trying each
// fetcher in order.
func WithReferenceFetchers(f ...papersources.ReferenceFetcher) Option {
	return func(p *Pipeline) { p.references = f }
}

// WithVectorIndex upserts an embedding of every new paper.
func WithVectorIndex(e embedding.Embedder, v VectorStore) Option {
	return func(p *Pipeline) {
		p.embedder = e
		p.vectors = v
	}
}

// WithPublisher emits a paper.ingested event for every new paper.
func WithPublisher(pub EventPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics records ingestion outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a Pipeline writing to store.
func NewPipeline(cfg Config, store Store, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:     cfg,
		store:   store,
		chunker: NewChunker(cfg.ChunkMaxChars, cfg.ChunkOverlap),
		lock:    NewKeyedLock[Result](cfg.PaperTimeout),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "ingestion").Logger()
	return p
}

// Ingest persists one paper. A concurrent Ingest of the same paper (same
// DOI, or same normalized title when there is no DOI) waits for the first
// and returns its result marked Reused. The shared ingestion outlives a
// cancelled first caller, bounded by Config.PaperTimeout.
func (p *Pipeline) Ingest(ctx context.Context, rp domain.RankedPaper) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if rp.Paper == nil {
		return Result{}, domain.NewValidationError("paper", "is required")
	}
	paper := rp.Paper
	if paper.CanonicalID == "" {
		return Result{}, domain.NewValidationError("canonical_id", "is required")
	}

	res, joined, err := p.lock.Do(ctx, paper.DedupKey(), func(ctx context.Context) (Result, error) {
		return p.ingest(ctx, paper)
	})
	if err != nil {
		if !joined {
			p.metrics.RecordIngestionFailed()
		}
		return Result{}, err
	}
	if joined {
		res.Reused = true
		res.Created = false
		p.metrics.RecordPaperReused()
	}
	return res, nil
}

// IngestAll ingests papers with bounded concurrency and returns the ids of
// the papers that were persisted or reused, in input order. Failures of
// individual papers are logged and skipped.
func (p *Pipeline) IngestAll(ctx context.Context, papers []domain.RankedPaper) ([]string, error) {
	results := make([]*Result, len(papers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i := range papers {
		g.Go(func() error {
			res, err := p.Ingest(gctx, papers[i])
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				p.logWithPaper(papers[i].Paper).Warn().Err(err).Msg("paper ingestion failed")
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest papers: %w", err)
	}

	ids := make([]string, 0, len(papers))
	for _, r := range results {
		if r != nil {
			ids = append(ids, r.PaperID)
		}
	}
	return ids, nil
}

func (p *Pipeline) ingest(ctx context.Context, paper *domain.Paper) (Result, error) {
	start := time.Now()
	logger := p.logWithPaper(paper)

	existing, err := p.store.FindExisting(ctx, paper)
	if err != nil {
		return Result{}, fmt.Errorf("check existing paper: %w", err)
	}

	if existing != nil {
		res := Result{PaperID: existing.ID, CanonicalID: paper.CanonicalID, Reused: true, FullText: existing.HasFullText}
		if !existing.HasFullText {
			if fullText := p.fullText(ctx, p.withResolvedPDF(ctx, paper)); fullText != "" {
				chunks := p.chunker.BuildChunks(paper.Title, paper.Abstract, fullText)
				if err := p.store.ReplaceChunks(ctx, existing.ID, chunks); err != nil {
					return Result{}, fmt.Errorf("replace chunks: %w", err)
				}
				res.FullText = true
				res.Chunks = len(chunks)
				p.metrics.RecordFullTextExtracted()
			}
		}
		p.metrics.RecordPaperReused()
		logger.Info().
			Str("paper_id", existing.ID).
			Bool("full_text", res.FullText).
			Msg("reused existing paper")
		return res, nil
	}

	paper = p.withResolvedPDF(ctx, paper)
	fullText := p.fullText(ctx, paper)
	chunks := p.chunker.BuildChunks(paper.Title, paper.Abstract, fullText)

	id, err := p.store.CreatePaper(ctx, paper, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("create paper: %w", err)
	}

	res := Result{
		PaperID:     id,
		CanonicalID: paper.CanonicalID,
		Created:     true,
		FullText:    fullText != "",
		Chunks:      len(chunks),
	}
	if res.FullText {
		p.metrics.RecordFullTextExtracted()
	}

	p.storeReferences(ctx, id, paper)
	p.indexVector(ctx, id, paper)
	p.publishIngested(ctx, paper, res)

	p.metrics.RecordPaperIngested(time.Since(start).Seconds())
	logger.Info().
		Str("paper_id", id).
		Int("chunks", res.Chunks).
		Bool("full_text", res.FullText).
		Dur("duration", time.Since(start)).
		Msg("ingested paper")
	return res, nil
}

// withResolvedPDF fills in a missing PDF URL from the resolver.
func (p *Pipeline) withResolvedPDF(ctx context.Context, paper *domain.Paper) *domain.Paper {
	if paper.PDFURL != "" || paper.DOI == "" || p.resolver == nil {
		return paper
	}
	url, err := p.resolver.ResolvePDF(ctx, paper.DOI)
	if err != nil {
		p.logWithPaper(paper).Debug().Err(err).Msg("pdf lookup failed")
		return paper
	}
	if url == "" {
		return paper
	}
	return paper.WithPDFURL(url)
}

// fullText extracts the paper's PDF text, "" when unavailable.
func (p *Pipeline) fullText(ctx context.Context, paper *domain.Paper) string {
	if p.extractor == nil || paper.PDFURL == "" {
		return ""
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	text, err := p.extractor.Extract(extractCtx, paper.PDFURL)
	if err != nil {
		p.logWithPaper(paper).Warn().Err(err).Str("pdf_url", paper.PDFURL).Msg("full text extraction failed")
		return ""
	}
	return text
}

func (p *Pipeline) storeReferences(ctx context.Context, id string, paper *domain.Paper) {
	if !p.cfg.FetchReferences || len(p.references) == 0 {
		return
	}
	doi := domain.NormalizeDOI(paper.DOI)
	if doi == "" {
		return
	}

	logger := p.logWithPaper(paper)
	for _, f := range p.references {
		refs, err := f.GetReferences(ctx, doi)
		if err != nil {
			logger.Debug().Err(err).Msg("reference lookup failed")
			continue
		}
		if len(refs) > p.cfg.MaxReferences {
			refs = refs[:p.cfg.MaxReferences]
		}
		if err := p.store.StoreReferences(ctx, id, refs); err != nil {
			logger.Warn().Err(err).Msg("store references failed")
		}
		return
	}
}

func (p *Pipeline) indexVector(ctx context.Context, id string, paper *domain.Paper) {
	if p.embedder == nil || p.vectors == nil {
		return
	}
	logger := p.logWithPaper(paper)

	vectors, err := p.embedder.Embed(ctx, []string{embedding.PaperText(paper)})
	if err != nil || len(vectors) != 1 {
		logger.Warn().Err(err).Msg("embed paper failed")
		return
	}
	point := qdrant.PaperPoint{
		PaperID:     id,
		CanonicalID: paper.CanonicalID,
		Title:       paper.Title,
		Year:        paper.Year,
		Source:      string(paper.Source),
		Embedding:   vectors[0],
	}
	if err := p.vectors.Upsert(ctx, point); err != nil {
		logger.Warn().Err(err).Msg("vector upsert failed")
	}
}

func (p *Pipeline) publishIngested(ctx context.Context, paper *domain.Paper, res Result) {
	if p.publisher == nil {
		return
	}
	event, err := domain.NewEvent(domain.EventTypePaperIngested, res.PaperID, domain.PaperIngestedPayload{
		PaperID:     res.PaperID,
		CanonicalID: paper.CanonicalID,
		DOI:         paper.DOI,
		Title:       paper.Title,
		Source:      paper.Source,
		ChunkCount:  res.Chunks,
		FullText:    res.FullText,
	})
	if err == nil {
		err = p.publisher.Publish(ctx, event)
	}
	if err != nil {
		p.logWithPaper(paper).Warn().Err(err).Msg("publish paper.ingested failed")
	}
}

func (p *Pipeline) logWithPaper(paper *domain.Paper) *zerolog.Logger {
	var l zerolog.Logger
	if paper == nil {
		l = p.logger
	} else {
		l = observability.WithPaperContext(p.logger, paper.CanonicalID, paper.DOI)
	}
	return &l
}
