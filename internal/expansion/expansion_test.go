package expansion

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRewriter struct {
	out   []string
	err   error
	calls int
	gotN  int
}

func (s *stubRewriter) Rewrite(ctx context.Context, query string, n int) ([]string, error) {
	s.calls++
	s.gotN = n
	return s.out, s.err
}

func TestExpander_Expand(t *testing.T) {
	ctx := context.Background()

	t.Run("original first and trimmed", func(t *testing.T) {
		e := New(Config{DisableSynonyms: true})
		assert.Equal(t, []string{"protein folding"}, e.Expand(ctx, "  protein folding \n"))
	})

	t.Run("empty query", func(t *testing.T) {
		e := New(Config{})
		assert.Equal(t, []string{""}, e.Expand(ctx, "   "))
	})

	t.Run("abbreviation expands", func(t *testing.T) {
		e := New(Config{})
		got := e.Expand(ctx, "ML for drug discovery")
		require.Len(t, got, 2)
		assert.Equal(t, "ML for drug discovery", got[0])
		assert.Equal(t, "machine learning for drug discovery", got[1])
	})

	t.Run("expansion abbreviates", func(t *testing.T) {
		e := New(Config{})
		got := e.Expand(ctx, "large language models in medicine")
		assert.Equal(t, []string{"large language models in medicine", "llms in medicine"}, got)
	})

	t.Run("abbreviation inside a word is not replaced", func(t *testing.T) {
		e := New(Config{})
		assert.Equal(t, []string{"html parsing"}, e.Expand(ctx, "html parsing"))
	})

	t.Run("custom synonyms", func(t *testing.T) {
		e := New(Config{Synonyms: map[string]string{"PPI": "Protein-Protein Interaction"}})
		got := e.Expand(ctx, "PPI networks")
		assert.Contains(t, got, "protein-protein interaction networks")
	})

	t.Run("rewriter appends unique variants", func(t *testing.T) {
		r := &stubRewriter{out: []string{"ML for drug discovery", "computational drug design", " "}}
		e := New(Config{MaxVariants: 4}, WithRewriter(r))

		got := e.Expand(ctx, "ML for drug discovery")
		assert.Equal(t, []string{
			"ML for drug discovery",
			"machine learning for drug discovery",
			"computational drug design",
		}, got)
		assert.Equal(t, 2, r.gotN)
	})

	t.Run("rewriter failure keeps synonyms", func(t *testing.T) {
		r := &stubRewriter{err: errors.New("model down")}
		e := New(Config{}, WithRewriter(r))

		got := e.Expand(ctx, "RL robotics")
		assert.Equal(t, []string{"RL robotics", "reinforcement learning robotics"}, got)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("max variants bounds output", func(t *testing.T) {
		r := &stubRewriter{out: []string{"a", "b", "c", "d"}}
		e := New(Config{MaxVariants: 2, DisableSynonyms: true}, WithRewriter(r))
		assert.Equal(t, []string{"q", "a"}, e.Expand(ctx, "q"))
	})
}

type stubChat struct {
	content string
	err     error
	got     []*schema.Message
}

func (s *stubChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.got = input
	if s.err != nil {
		return nil, s.err
	}
	return &schema.Message{Role: schema.Assistant, Content: s.content}, nil
}

func TestLLMRewriter_Rewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("parses fenced JSON", func(t *testing.T) {
		chat := &stubChat{content: "```json\n[\"gene editing with CRISPR\", \"Cas9 genome engineering\", \"third\"]\n```"}
		r := NewLLMRewriterWithModel(chat, "test-model", 0, nil)

		got, err := r.Rewrite(ctx, "CRISPR", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"gene editing with CRISPR", "Cas9 genome engineering"}, got)
		require.Len(t, chat.got, 2)
		assert.Equal(t, schema.System, chat.got[0].Role)
		assert.Contains(t, chat.got[1].Content, `"CRISPR"`)
	})

	t.Run("falls back to lines", func(t *testing.T) {
		chat := &stubChat{content: "1. first rewrite\n- second rewrite\n\n"}
		r := NewLLMRewriterWithModel(chat, "test-model", 0, nil)

		got, err := r.Rewrite(ctx, "q", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"first rewrite", "second rewrite"}, got)
	})

	t.Run("model error", func(t *testing.T) {
		r := NewLLMRewriterWithModel(&stubChat{err: errors.New("boom")}, "m", 0, nil)
		_, err := r.Rewrite(ctx, "q", 3)
		assert.Error(t, err)
	})

	t.Run("empty response", func(t *testing.T) {
		r := NewLLMRewriterWithModel(&stubChat{content: "  "}, "m", 0, nil)
		_, err := r.Rewrite(ctx, "q", 3)
		assert.Error(t, err)
	})

	t.Run("nothing requested", func(t *testing.T) {
		chat := &stubChat{}
		r := NewLLMRewriterWithModel(chat, "m", 0, nil)
		got, err := r.Rewrite(ctx, "q", 0)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Nil(t, chat.got)
	})
}

func TestNewLLMRewriter_RequiresKey(t *testing.T) {
	_, err := NewLLMRewriter(context.Background(), LLMConfig{}, nil)
	assert.Error(t, err)
}
