// Package papersources provides the adapter contract for external
// bibliographic providers and the shared HTTP plumbing they use.
//
// Each provider (OpenAlex, Semantic Scholar, arXiv, PubMed, bioRxiv, Scopus)
// implements PaperSource. Adapters translate a query into one provider
// request and normalize the response into domain.Paper. They never retry:
// retry, timeout and circuit breaking belong to the resilience package.
//
// Example usage:
//
//	source := semanticscholar.NewClient(cfg, httpClient)
//	params := papersources.SearchParams{
//		Query:      "CRISPR gene editing",
//		MaxResults: 100,
//	}
//	result, err := source.Search(ctx, params)
package papersources

import (
	"context"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
// All fields except Query are optional and support filtering the search results.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// DateFrom filters papers published on or after this date.
	// If nil, no lower date bound is applied.
	DateFrom *time.Time

	// DateTo filters papers published on or before this date.
	// If nil, no upper date bound is applied.
	DateTo *time.Time

	// MaxResults limits the number of papers returned in a single request.
	// Sources may have their own maximum limits that override this value.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// Offset specifies the starting position for paginated results.
	Offset int

	// IncludePreprints includes preprint versions of papers when true.
	IncludePreprints bool

	// OpenAccessOnly filters results to only include open access papers.
	OpenAccessOnly bool

	// MinCitations filters papers to only include those with at least
	// this many citations. A value of 0 applies no citation filter.
	MinCitations int
}

// ParamsFromOptions builds provider search params from engine search options.
// Year bounds become whole-year date bounds in UTC.
func ParamsFromOptions(query string, opts domain.SearchOptions) SearchParams {
	params := SearchParams{
		Query:            query,
		MaxResults:       opts.ResultCount(),
		IncludePreprints: true,
		OpenAccessOnly:   opts.OpenAccessOnly,
	}
	if opts.YearFrom > 0 {
		from := time.Date(opts.YearFrom, time.January, 1, 0, 0, 0, 0, time.UTC)
		params.DateFrom = &from
	}
	if opts.YearTo > 0 {
		to := time.Date(opts.YearTo, time.December, 31, 0, 0, 0, 0, time.UTC)
		params.DateTo = &to
	}
	return params
}

// SearchResult contains the results from a paper source search operation.
type SearchResult struct {
	// Papers contains the papers returned by the search.
	Papers []*domain.Paper

	// TotalResults is the total number of papers matching the query as
	// reported by the provider. It may be an estimate.
	TotalResults int

	// HasMore indicates whether additional results are available
	// beyond the current page.
	HasMore bool

	// NextOffset is the offset value to use for fetching the next page.
	NextOffset int

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters.
	//
	// Implementations must:
	//   - Respect context cancellation
	//   - Return *domain.RateLimitError on throttling
	//   - Return *domain.ExternalAPIError for other non-2xx responses
	//   - Return *domain.ParseError when the body cannot be decoded
	//   - Never retry
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this paper source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	Name() string

	// IsEnabled returns whether this paper source is configured for use.
	IsEnabled() bool
}

// ReferenceFetcher is implemented by sources that can list the works a
// paper cites. The id is a DOI or a provider-native identifier.
type ReferenceFetcher interface {
	GetReferences(ctx context.Context, id string) ([]domain.Reference, error)
}
