package expansion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/helixir/paper-search-engine/internal/observability"
)

// ChatGenerator is the subset of an eino chat model the rewriter uses.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// LLMConfig configures the OpenAI-compatible chat model behind LLMRewriter.
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// LLMRewriter asks a chat model for paraphrases of a research query.
type LLMRewriter struct {
	model     ChatGenerator
	modelName string
	timeout   time.Duration
	metrics   *observability.Metrics
}

// NewLLMRewriter creates a rewriter backed by an OpenAI-compatible chat model.
func NewLLMRewriter(ctx context.Context, cfg LLMConfig, metrics *observability.Metrics) (*LLMRewriter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm rewriter: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.3
	}

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewLLMRewriterWithModel(chat, cfg.Model, cfg.Timeout, metrics), nil
}

// NewLLMRewriterWithModel creates a rewriter around an existing chat model.
func NewLLMRewriterWithModel(chat ChatGenerator, modelName string, timeout time.Duration, metrics *observability.Metrics) *LLMRewriter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMRewriter{model: chat, modelName: modelName, timeout: timeout, metrics: metrics}
}

// Rewrite returns up to n paraphrases of query.
func (r *LLMRewriter) Rewrite(ctx context.Context, query string, n int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	messages := []*schema.Message{
		{Role: schema.System, Content: rewriteSystemPrompt},
		{Role: schema.User, Content: buildRewritePrompt(query, n)},
	}

	start := time.Now()
	resp, err := r.model.Generate(ctx, messages)
	if err != nil {
		r.metrics.RecordModelRequestFailed("rewrite", r.modelName)
		return nil, fmt.Errorf("generate rewrites: %w", err)
	}
	r.metrics.RecordModelRequest("rewrite", r.modelName, time.Since(start).Seconds())

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errors.New("generate rewrites: empty response")
	}

	rewrites, err := parseRewrites(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(rewrites) > n {
		rewrites = rewrites[:n]
	}
	return rewrites, nil
}

const rewriteSystemPrompt = `You rewrite academic search queries for bibliographic databases.
Produce alternative phrasings that a paper title or abstract on the same topic would use.
Keep the exact topic. Do not narrow it to a sub-topic and do not broaden it.
Respond with a JSON array of strings and nothing else.`

func buildRewritePrompt(query string, n int) string {
	return fmt.Sprintf("Query: %q\nReturn at most %d rewrites as a JSON array of strings.", query, n)
}

// parseRewrites accepts a JSON array, optionally fenced as markdown, and
// falls back to one rewrite per non-empty line.
func parseRewrites(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start != -1 && end > start {
		var out []string
		if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
			return nil, fmt.Errorf("parse rewrites: %w", err)
		}
		return cleanRewrites(out), nil
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		out = append(out, strings.Trim(line, `"`))
	}
	return cleanRewrites(out), nil
}

func cleanRewrites(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
