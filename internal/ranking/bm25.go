package ranking

import (
	"math"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// BM25Params tunes the lexical model.
type BM25Params struct {
	// K1 controls term frequency saturation.
	K1 float64
	// B controls document length normalization.
	B float64
	// TitleWeight multiplies term frequency in the title.
	TitleWeight float64
}

// DefaultBM25Params returns the classic k1=1.5, b=0.75 with double-weighted titles.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, TitleWeight: 2}
}

type docStats struct {
	title    map[string]int
	abstract map[string]int
	length   int
}

// Environment is the per-search BM25 state: every query term's inverse
// document frequency, computed once across the candidate set, and the
// average combined title and abstract length.
type Environment struct {
	params BM25Params
	terms  []string
	idf    map[string]float64
	avgLen float64
	docs   []docStats
}

// NewEnvironment tokenizes every candidate once and derives document
// frequencies in a single pass.
func NewEnvironment(query string, papers []*domain.Paper, params BM25Params) *Environment {
	env := &Environment{
		params: params,
		terms:  uniqueTokens(query),
		idf:    make(map[string]float64),
		docs:   make([]docStats, len(papers)),
	}

	df := make(map[string]int, len(env.terms))
	totalLen := 0
	for i, p := range papers {
		titleTokens := Tokenize(p.Title)
		abstractTokens := Tokenize(p.Abstract)
		doc := docStats{
			title:    countTokens(titleTokens),
			abstract: countTokens(abstractTokens),
			length:   len(titleTokens) + len(abstractTokens),
		}
		env.docs[i] = doc
		totalLen += doc.length

		for _, term := range env.terms {
			if doc.title[term] > 0 || doc.abstract[term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(papers))
	if len(papers) > 0 {
		env.avgLen = float64(totalLen) / n
	}
	for _, term := range env.terms {
		if d := df[term]; d > 0 {
			env.idf[term] = math.Log(1 + (n-float64(d)+0.5)/(float64(d)+0.5))
		}
	}
	return env
}

// Terms returns the distinct query terms.
func (e *Environment) Terms() []string {
	return e.terms
}

// IDF returns the inverse document frequency of term, 0 when no candidate
// contains it.
func (e *Environment) IDF(term string) float64 {
	return e.idf[term]
}

// Score returns the BM25 score of the i-th candidate.
func (e *Environment) Score(i int) float64 {
	if i < 0 || i >= len(e.docs) || e.avgLen == 0 {
		return 0
	}
	doc := e.docs[i]
	k1, b := e.params.K1, e.params.B
	norm := k1 * (1 - b + b*float64(doc.length)/e.avgLen)

	var score float64
	for _, term := range e.terms {
		idf := e.idf[term]
		if idf == 0 {
			continue
		}
		tf := e.params.TitleWeight*float64(doc.title[term]) + float64(doc.abstract[term])
		if tf == 0 {
			continue
		}
		score += idf * tf * (k1 + 1) / (tf + norm)
	}
	return score
}

// Scores returns the BM25 score of every candidate in input order.
func (e *Environment) Scores() []float64 {
	out := make([]float64, len(e.docs))
	for i := range e.docs {
		out[i] = e.Score(i)
	}
	return out
}

func uniqueTokens(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
