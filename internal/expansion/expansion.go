// Package expansion turns one user query into a small ordered list of query
// variants. The first variant is always the trimmed original query; later
// variants come from a built-in abbreviation table and, when configured, an
// LLM paraphraser. Only the first variant is sent to providers.
package expansion

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultMaxVariants bounds the length of an expansion, original included.
const DefaultMaxVariants = 5

// Rewriter produces paraphrases of a query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, n int) ([]string, error)
}

// Config configures an Expander.
type Config struct {
	// MaxVariants bounds the number of returned variants, original included.
	MaxVariants int

	// Synonyms adds to or overrides the built-in abbreviation table.
	// Keys are lower-case abbreviations, values their expansions.
	Synonyms map[string]string

	// DisableSynonyms turns the abbreviation table off.
	DisableSynonyms bool
}

// Expander expands queries. It is safe for concurrent use.
type Expander struct {
	maxVariants int
	forward     map[string]string
	reverse     map[string]string
	patterns    []synonymPattern
	rewriter    Rewriter
	logger      zerolog.Logger
}

type synonymPattern struct {
	re          *regexp.Regexp
	replacement string
}

// Option customizes an Expander.
type Option func(*Expander)

// WithRewriter appends paraphrases from r after the synonym variants.
func WithRewriter(r Rewriter) Option {
	return func(e *Expander) { e.rewriter = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Expander) {
		e.logger = logger.With().Str("component", "query_expansion").Logger()
	}
}

// New creates an Expander.
func New(cfg Config, opts ...Option) *Expander {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = DefaultMaxVariants
	}

	e := &Expander{
		maxVariants: cfg.MaxVariants,
		forward:     make(map[string]string),
		reverse:     make(map[string]string),
		logger:      zerolog.Nop(),
	}

	if !cfg.DisableSynonyms {
		for abbr, full := range defaultSynonyms {
			e.forward[abbr] = full
		}
		for abbr, full := range cfg.Synonyms {
			e.forward[strings.ToLower(strings.TrimSpace(abbr))] = strings.ToLower(strings.TrimSpace(full))
		}
		for abbr, full := range e.forward {
			e.reverse[full] = abbr
		}
		e.patterns = compilePatterns(e.forward, e.reverse)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the ordered variants of query. Element 0 is the trimmed
// original. Variants are unique under case and whitespace normalization.
// Rewriter failures are logged and leave the synonym variants intact.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	original := strings.TrimSpace(query)
	variants := []string{original}
	if original == "" {
		return variants
	}

	seen := map[string]bool{normalize(original): true}
	add := func(v string) bool {
		v = strings.TrimSpace(v)
		key := normalize(v)
		if v == "" || seen[key] {
			return len(variants) < e.maxVariants
		}
		seen[key] = true
		variants = append(variants, v)
		return len(variants) < e.maxVariants
	}

	for _, v := range e.synonymVariants(original) {
		if !add(v) {
			return variants
		}
	}

	if e.rewriter != nil && len(variants) < e.maxVariants {
		rewrites, err := e.rewriter.Rewrite(ctx, original, e.maxVariants-len(variants))
		if err != nil {
			e.logger.Warn().Err(err).Str("query", original).Msg("query rewrite failed")
			return variants
		}
		for _, v := range rewrites {
			if !add(v) {
				break
			}
		}
	}

	return variants
}

// synonymVariants swaps each known abbreviation or expansion in query for
// its counterpart, one substitution per variant, in table order.
func (e *Expander) synonymVariants(query string) []string {
	var out []string
	for _, p := range e.patterns {
		if p.re.MatchString(query) {
			out = append(out, p.re.ReplaceAllString(query, "${1}"+p.replacement+"${2}"))
		}
	}
	return out
}

func compilePatterns(forward, reverse map[string]string) []synonymPattern {
	terms := make([]string, 0, len(forward)+len(reverse))
	for abbr := range forward {
		terms = append(terms, abbr)
	}
	for full := range reverse {
		terms = append(terms, full)
	}
	sortTerms(terms)

	patterns := make([]synonymPattern, 0, len(terms))
	for _, term := range terms {
		replacement, ok := forward[term]
		if !ok {
			replacement = reverse[term]
		}
		re := regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(term) + `($|[^\p{L}\p{N}])`)
		patterns = append(patterns, synonymPattern{re: re, replacement: replacement})
	}
	return patterns
}

// sortTerms orders longer terms first so multi-word expansions are tried
// before the abbreviations they contain, then alphabetically.
func sortTerms(terms []string) {
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
