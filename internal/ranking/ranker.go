// Package ranking scores de-duplicated candidates by lexical or semantic
// relevance, citation authority and recency.
package ranking

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// Strategy names the relevance model used for a ranking pass.
type Strategy string

const (
	StrategyLexical  Strategy = "lexical"
	StrategySemantic Strategy = "semantic"
)

const (
	// recencyWindowYears is the span over which recency decays linearly to zero.
	recencyWindowYears = 10
	// minRecencyYear is the earliest publication year that earns a recency score.
	minRecencyYear = 1900
)

// Weights are the coefficients of the combined score.
type Weights struct {
	Relevance float64 `mapstructure:"relevance"`
	Authority float64 `mapstructure:"authority"`
	Recency   float64 `mapstructure:"recency"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Relevance: 3.0, Authority: 0.5, Recency: 1.0}
}

// Config configures a Ranker.
type Config struct {
	Weights  Weights
	BM25     BM25Params
	Semantic SemanticConfig
}

func (c *Config) applyDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.BM25.K1 <= 0 {
		c.BM25.K1 = DefaultBM25Params().K1
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		c.BM25.B = DefaultBM25Params().B
	}
	if c.BM25.TitleWeight <= 0 {
		c.BM25.TitleWeight = DefaultBM25Params().TitleWeight
	}
	c.Semantic.applyDefaults()
}

// Ranker orders candidates by combined score.
type Ranker struct {
	cfg      Config
	embedder Embedder
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithEmbedder enables semantic re-ranking.
func WithEmbedder(e Embedder) Option {
	return func(r *Ranker) { r.embedder = e }
}

// WithLogger sets the ranker's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Ranker) { r.logger = logger }
}

// WithMetrics records the strategy chosen for each pass.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

// WithClock overrides the clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// New creates a Ranker.
func New(cfg Config, opts ...Option) *Ranker {
	cfg.applyDefaults()
	r := &Ranker{
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores candidates and returns them sorted by combined score,
// highest first. Ties keep their input order. Candidates are copied; the
// input slice is not modified.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []domain.RankedPaper) []domain.RankedPaper {
	ranked, _ := r.RankWithStrategy(ctx, query, candidates)
	return ranked
}

// RankWithStrategy is Rank, also reporting which relevance model was used.
func (r *Ranker) RankWithStrategy(ctx context.Context, query string, candidates []domain.RankedPaper) ([]domain.RankedPaper, Strategy) {
	candidates = withPapers(candidates)
	if len(candidates) == 0 {
		return []domain.RankedPaper{}, StrategyLexical
	}

	papers := make([]*domain.Paper, len(candidates))
	for i := range candidates {
		papers[i] = candidates[i].Paper
	}

	env := NewEnvironment(query, papers, r.cfg.BM25)
	relevance := normalize(env.Scores())
	strategy := StrategyLexical
	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}

	if r.embedder != nil && countPositive(relevance) >= r.cfg.Semantic.MinCandidates {
		sims, err := r.semanticScores(ctx, query, papers)
		if err != nil {
			r.logger.Warn().Err(err).
				Str("query", query).
				Int("candidates", len(candidates)).
				Msg("semantic re-rank failed, using lexical scores")
		} else {
			strategy = StrategySemantic
			relevance = sims
			for i, s := range sims {
				keep[i] = s >= r.cfg.Semantic.MinSimilarity
			}
		}
	}

	year := r.now().Year()
	out := make([]domain.RankedPaper, 0, len(candidates))
	for i, c := range candidates {
		if !keep[i] {
			continue
		}
		c.Scores = r.score(relevance[i], c.Paper, year)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Combined > out[j].Scores.Combined
	})

	r.metrics.RecordRanking(string(strategy))
	r.logger.Debug().
		Str("query", query).
		Str("strategy", string(strategy)).
		Int("candidates", len(candidates)).
		Int("ranked", len(out)).
		Msg("ranked candidates")

	return out, strategy
}

func (r *Ranker) score(relevance float64, p *domain.Paper, currentYear int) domain.Scores {
	s := domain.Scores{
		Relevance: finite(relevance),
		Authority: AuthorityScore(p.CitationCount),
		Recency:   RecencyScore(p.Year, currentYear),
	}
	w := r.cfg.Weights
	s.Combined = w.Relevance*s.Relevance + w.Authority*s.Authority + w.Recency*s.Recency
	return s
}

// AuthorityScore is log10(citations+1); negative counts score zero.
func AuthorityScore(citations int) float64 {
	if citations <= 0 {
		return 0
	}
	return math.Log10(float64(citations) + 1)
}

// RecencyScore is 1 for the current year, falling linearly to 0 ten years
// back. Years before 1900, unset years and older papers score zero; future
// years are clamped to 1.
func RecencyScore(year, currentYear int) float64 {
	if year < minRecencyYear {
		return 0
	}
	age := currentYear - year
	if age <= 0 {
		return 1
	}
	if age >= recencyWindowYears {
		return 0
	}
	return 1 - float64(age)/recencyWindowYears
}

// normalize scales scores into [0,1] by the maximum.
func normalize(scores []float64) []float64 {
	var maxScore float64
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	if maxScore <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = finite(s / maxScore)
	}
	return out
}

func withPapers(candidates []domain.RankedPaper) []domain.RankedPaper {
	out := make([]domain.RankedPaper, 0, len(candidates))
	for _, c := range candidates {
		if c.Paper != nil {
			out = append(out, c)
		}
	}
	return out
}

func countPositive(scores []float64) int {
	n := 0
	for _, s := range scores {
		if s > 0 {
			n++
		}
	}
	return n
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
