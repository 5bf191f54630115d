package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder produces deterministic unit vectors from a text hash. Texts
// sharing words get correlated vectors, which is enough for ranking tests
// and local runs without an API key.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a MockEmbedder of the given size (default 64).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

// Dimensions returns the vector size.
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

func (m *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(m.dimensions)]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
