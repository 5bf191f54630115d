package embedding

import (
	"context"
	"errors"
	"testing"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
)

type fakeClient struct {
	batches [][]string
	err     error
	short   bool
}

func (f *fakeClient) EmbedStrings(_ context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type countingEmbedder struct {
	calls [][]string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestOpenAIEmbedder_BatchesAndSkipsBlank(t *testing.T) {
	client := &fakeClient{}
	e := NewOpenAIEmbedderWithClient(client, Config{BatchSize: 2, Dimensions: 2}, nil)

	vectors, err := e.Embed(context.Background(), []string{"a", " ", "bbb", "cc", "dddd"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	assert.Equal(t, [][]string{{"a", "bbb"}, {"cc", "dddd"}}, client.batches)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{0, 0}, vectors[1])
	assert.Equal(t, []float32{3, 1}, vectors[2])
	assert.Equal(t, []float32{4, 1}, vectors[4])
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Run("client failure", func(t *testing.T) {
		e := NewOpenAIEmbedderWithClient(&fakeClient{err: errors.New("boom")}, Config{}, nil)
		_, err := e.Embed(context.Background(), []string{"x"})

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "embedding", apiErr.Source)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		e := NewOpenAIEmbedderWithClient(&fakeClient{short: true}, Config{}, nil)
		_, err := e.Embed(context.Background(), []string{"x", "y"})
		assert.ErrorIs(t, err, domain.ErrParse)
	})
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	e := NewOpenAIEmbedderWithClient(&fakeClient{}, Config{}, nil)
	assert.Equal(t, "text-embedding-3-small", e.Model())
	assert.Equal(t, 1536, e.Dimensions())
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCache_LRU(t *testing.T) {
	c := NewCache(2)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	_, _ = c.Get("a")
	c.Set("c", []float32{3})

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []float32{1}, v)
	assert.Equal(t, 2, c.Len())

	c.Set("a", []float32{9})
	v, _ = c.Get("a")
	assert.Equal(t, []float32{9}, v)
}

func TestCachedEmbedder_SendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"alpha", "beta", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5}, {4}, {5}}, first)

	second, err := e.Embed(ctx, []string{"beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{4}, {5}}, second)

	assert.Equal(t, [][]string{{"alpha", "beta"}, {"gamma"}}, inner.calls)
}

func TestMockEmbedder(t *testing.T) {
	m := NewMockEmbedder(32)
	vectors, err := m.Embed(context.Background(), []string{"graph neural networks", "graph neural networks", ""})
	require.NoError(t, err)

	assert.Len(t, vectors[0], 32)
	assert.Equal(t, vectors[0], vectors[1])
	assert.Equal(t, make([]float32, 32), vectors[2])
}

func TestPaperText(t *testing.T) {
	assert.Equal(t, "Title", PaperText(&domain.Paper{Title: " Title "}))
	assert.Equal(t, "Title\n\nAbstract", PaperText(&domain.Paper{Title: "Title", Abstract: "Abstract"}))
}
