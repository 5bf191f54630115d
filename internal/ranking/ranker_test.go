package ranking

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

func candidate(id, title, abstract string, year, citations int) domain.RankedPaper {
	return domain.RankedPaper{Paper: &domain.Paper{
		CanonicalID:   id,
		Source:        domain.SourceTypeOpenAlex,
		Title:         title,
		Abstract:      abstract,
		Year:          year,
		CitationCount: citations,
	}}
}

func ids(papers []domain.RankedPaper) []string {
	out := make([]string, len(papers))
	for i, p := range papers {
		out[i] = p.CanonicalID
	}
	return out
}

type stubEmbedder struct {
	vector func(text string) []float32
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

func graphVector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "graph") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "lowercases and splits", text: "Graph Neural-Networks", want: []string{"graph", "neural", "networks"}},
		{name: "drops stop words", text: "a survey of the methods", want: []string{"survey", "methods"}},
		{name: "drops single characters", text: "x y model", want: []string{"model"}},
		{name: "keeps digits", text: "COVID-19 in 2020", want: []string{"covid", "19", "2020"}},
		{name: "empty", text: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestEnvironment_IDFComputedOncePerTerm(t *testing.T) {
	papers := []*domain.Paper{
		{Title: "protein folding", Abstract: "deep learning for protein structure"},
		{Title: "protein design", Abstract: "generative models"},
		{Title: "galaxy surveys", Abstract: "telescope data"},
	}
	env := NewEnvironment("protein folding quasar", papers, DefaultBM25Params())

	assert.Equal(t, []string{"protein", "folding", "quasar"}, env.Terms())
	assert.Greater(t, env.IDF("folding"), env.IDF("protein"), "rarer term has higher idf")
	assert.Zero(t, env.IDF("quasar"), "absent term has zero idf")

	for i := range papers {
		assert.False(t, math.IsNaN(env.Score(i)))
	}
	assert.Zero(t, env.Score(2))
	assert.Greater(t, env.Score(0), env.Score(1))
}

func TestEnvironment_AbsentTermsScoreZero(t *testing.T) {
	papers := []*domain.Paper{{Title: "alpha"}, {Title: "beta"}}
	env := NewEnvironment("gamma delta", papers, DefaultBM25Params())
	assert.Equal(t, []float64{0, 0}, env.Scores())
}

func TestEnvironment_EmptyCandidates(t *testing.T) {
	env := NewEnvironment("anything", nil, DefaultBM25Params())
	assert.Empty(t, env.Scores())
	assert.Zero(t, env.Score(0))
}

func TestEnvironment_TitleDoubleWeighted(t *testing.T) {
	papers := []*domain.Paper{
		{Title: "transformers overview", Abstract: "attention methods"},
		{Title: "attention methods", Abstract: "transformers overview"},
		{Title: "unrelated study", Abstract: "nothing here"},
	}
	env := NewEnvironment("transformers", papers, DefaultBM25Params())
	assert.Greater(t, env.Score(0), env.Score(1))
}

func TestAuthorityScore(t *testing.T) {
	assert.Zero(t, AuthorityScore(0))
	assert.Zero(t, AuthorityScore(-3))
	assert.InDelta(t, 1.0, AuthorityScore(9), 1e-9)
	assert.InDelta(t, 2.0, AuthorityScore(99), 1e-9)
}

func TestRecencyScore(t *testing.T) {
	tests := []struct {
		name string
		year int
		want float64
	}{
		{name: "current year", year: 2025, want: 1},
		{name: "future year clamps", year: 2027, want: 1},
		{name: "five years old", year: 2020, want: 0.5},
		{name: "ten years old", year: 2015, want: 0},
		{name: "older than window", year: 1990, want: 0},
		{name: "before 1900", year: 1850, want: 0},
		{name: "unset", year: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RecencyScore(tt.year, 2025), 1e-9)
		})
	}
}

func TestRanker_WeightsAppliedOnce(t *testing.T) {
	weights := Weights{Relevance: 2, Authority: 0.5, Recency: 1.5}
	r := New(Config{Weights: weights}, WithClock(fixedNow))

	ranked := r.Rank(context.Background(), "quantum error correction", []domain.RankedPaper{
		candidate("a", "quantum error correction codes", "surface codes", 2023, 999),
		candidate("b", "classical coding", "error bounds", 2010, 10),
	})
	require.Len(t, ranked, 2)

	for _, p := range ranked {
		s := p.Scores
		want := weights.Relevance*s.Relevance + weights.Authority*s.Authority + weights.Recency*s.Recency
		assert.InDelta(t, want, s.Combined, 1e-9, "paper %s", p.CanonicalID)
	}

	top := ranked[0]
	assert.Equal(t, "a", top.CanonicalID)
	assert.InDelta(t, 3.0, top.Scores.Authority, 1e-9)
	assert.InDelta(t, 0.8, top.Scores.Recency, 1e-9)
	assert.InDelta(t, 1.0, top.Scores.Relevance, 1e-9)
	assert.InDelta(t, 2*1.0+0.5*3.0+1.5*0.8, top.Scores.Combined, 1e-9)
}

func TestRanker_SortedNonIncreasing(t *testing.T) {
	r := New(Config{}, WithClock(fixedNow))
	ranked := r.Rank(context.Background(), "sleep memory consolidation", []domain.RankedPaper{
		candidate("a", "sleep and memory", "", 2001, 5),
		candidate("b", "memory consolidation during sleep", "hippocampal replay", 2024, 300),
		candidate("c", "diet", "", 2019, 0),
		candidate("d", "consolidation", "memory", 1850, 10000),
		candidate("e", "", "", 0, 0),
	})
	require.Len(t, ranked, 5)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Scores.Combined, ranked[i].Scores.Combined)
	}
	for _, p := range ranked {
		assert.False(t, math.IsNaN(p.Scores.Combined))
		if p.CanonicalID == "d" {
			assert.Zero(t, p.Scores.Recency)
		}
	}
}

func TestRanker_StableTies(t *testing.T) {
	r := New(Config{}, WithClock(fixedNow))
	ranked := r.Rank(context.Background(), "nothing matches", []domain.RankedPaper{
		candidate("first", "alpha", "", 2020, 4),
		candidate("second", "beta", "", 2020, 4),
		candidate("third", "gamma", "", 2020, 4),
	})
	assert.Equal(t, []string{"first", "second", "third"}, ids(ranked))
}

func TestRanker_DoesNotMutateInput(t *testing.T) {
	r := New(Config{}, WithClock(fixedNow))
	input := []domain.RankedPaper{
		candidate("a", "low", "", 2000, 0),
		candidate("b", "low match", "", 2025, 100),
	}
	_ = r.Rank(context.Background(), "match", input)
	assert.Equal(t, "a", input[0].CanonicalID)
	assert.Zero(t, input[0].Scores.Combined)
}

func TestRanker_EmptyAndNil(t *testing.T) {
	r := New(Config{})
	ranked, strategy := r.RankWithStrategy(context.Background(), "q", nil)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
	assert.Equal(t, StrategyLexical, strategy)

	ranked = r.Rank(context.Background(), "q", []domain.RankedPaper{{}})
	assert.Empty(t, ranked)
}

func semanticCandidates() []domain.RankedPaper {
	return []domain.RankedPaper{
		candidate("images", "neural networks for images", "convolutional", 2024, 0),
		candidate("exact", "graph neural networks", "message passing", 2020, 0),
		candidate("graph", "neural networks on graph data", "", 2020, 0),
		candidate("off", "soil chemistry", "", 2024, 0),
	}
}

func TestRanker_SemanticRerank(t *testing.T) {
	emb := &stubEmbedder{vector: graphVector}
	r := New(Config{Semantic: SemanticConfig{MinCandidates: 2}}, WithEmbedder(emb), WithClock(fixedNow))

	ranked, strategy := r.RankWithStrategy(context.Background(), "graph neural networks", semanticCandidates())

	assert.Equal(t, StrategySemantic, strategy)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []string{"exact", "graph"}, ids(ranked), "dissimilar candidates are rejected")
	for _, p := range ranked {
		assert.InDelta(t, 1.0, p.Scores.Relevance, 1e-6)
	}
}

func TestRanker_SemanticSkippedBelowMinCandidates(t *testing.T) {
	emb := &stubEmbedder{vector: graphVector}
	r := New(Config{Semantic: SemanticConfig{MinCandidates: 10}}, WithEmbedder(emb), WithClock(fixedNow))

	ranked, strategy := r.RankWithStrategy(context.Background(), "graph neural networks", semanticCandidates())

	assert.Equal(t, StrategyLexical, strategy)
	assert.Zero(t, emb.calls)
	assert.Len(t, ranked, 4)
}

func TestRanker_SemanticFallsBackOnError(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	r := New(Config{Semantic: SemanticConfig{MinCandidates: 2}}, WithEmbedder(emb), WithClock(fixedNow))

	ranked, strategy := r.RankWithStrategy(context.Background(), "graph neural networks", semanticCandidates())

	assert.Equal(t, StrategyLexical, strategy)
	require.Len(t, ranked, 4)
	assert.Equal(t, "off", ranked[3].CanonicalID, "no lexical overlap ranks last")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}
