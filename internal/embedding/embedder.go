// Package embedding produces dense vectors for queries and papers, used by
// semantic re-ranking and the vector index.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

const operationEmbed = "embed"

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures the OpenAI-compatible embedder.
type Config struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	CacheSize  int           `mapstructure:"cache_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 1536
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client  einoembedding.Embedder
	cfg     Config
	metrics *observability.Metrics
}

// NewOpenAIEmbedder creates an embedder from cfg.
func NewOpenAIEmbedder(ctx context.Context, cfg Config, metrics *observability.Metrics) (*OpenAIEmbedder, error) {
	if !cfg.Enabled() {
		return nil, domain.NewValidationError("embedding.api_key", "is required")
	}
	cfg.applyDefaults()

	client, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return NewOpenAIEmbedderWithClient(client, cfg, metrics), nil
}

// NewOpenAIEmbedderWithClient wraps an existing eino embedder.
func NewOpenAIEmbedderWithClient(client einoembedding.Embedder, cfg Config, metrics *observability.Metrics) *OpenAIEmbedder {
	cfg.applyDefaults()
	return &OpenAIEmbedder{client: client, cfg: cfg, metrics: metrics}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.cfg.Model }

// Dimensions returns the configured vector size.
func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Embed sends texts in batches. Blank texts are not sent and get a zero
// vector, which has zero similarity to everything.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.cfg.Dimensions)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i] = vectors[j]
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	vectors, err := e.client.EmbedStrings(callCtx, texts)
	if err != nil {
		e.metrics.RecordModelRequestFailed(operationEmbed, e.cfg.Model)
		return nil, domain.NewExternalAPIError("embedding", 0, "embed strings", err)
	}
	e.metrics.RecordModelRequest(operationEmbed, e.cfg.Model, time.Since(start).Seconds())

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding returned %d vectors for %d texts", domain.ErrParse, len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = toFloat32(v)
	}
	return out, nil
}

// PaperText is the text embedded for a paper: title, then abstract.
func PaperText(p *domain.Paper) string {
	title := strings.TrimSpace(p.Title)
	abstract := strings.TrimSpace(p.Abstract)
	if abstract == "" {
		return title
	}
	return title + "\n\n" + abstract
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
