package ranking

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/embedding"
)

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SemanticConfig controls the embedding re-rank pass.
type SemanticConfig struct {
	// MinCandidates is how many candidates must survive the lexical
	// pre-filter before the semantic pass runs.
	MinCandidates int `mapstructure:"min_candidates"`
	// MinSimilarity drops candidates whose similarity to the query is lower.
	MinSimilarity float64 `mapstructure:"min_similarity"`
	// ExactMatchBoost is added when the query appears verbatim in the title
	// or abstract.
	ExactMatchBoost float64 `mapstructure:"exact_match_boost"`
}

func (c *SemanticConfig) applyDefaults() {
	if c.MinCandidates <= 0 {
		c.MinCandidates = 10
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.2
	}
	if c.ExactMatchBoost <= 0 {
		c.ExactMatchBoost = 0.1
	}
}

func (r *Ranker) semanticScores(ctx context.Context, query string, papers []*domain.Paper) ([]float64, error) {
	texts := make([]string, 0, len(papers)+1)
	texts = append(texts, query)
	for _, p := range papers {
		texts = append(texts, embedding.PaperText(p))
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed candidates: got %d vectors for %d texts", len(vectors), len(texts))
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	scores := make([]float64, len(papers))
	for i, p := range papers {
		sim := float64(cosineSimilarity(vectors[0], vectors[i+1]))
		if needle != "" && containsFold(p, needle) {
			sim += r.cfg.Semantic.ExactMatchBoost
		}
		if sim > 1 {
			sim = 1
		}
		scores[i] = finite(sim)
	}
	return scores, nil
}

func containsFold(p *domain.Paper, needle string) bool {
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Abstract), needle)
}

// cosineSimilarity returns 0 for mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (sqrt32(normA) * sqrt32(normB))
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
