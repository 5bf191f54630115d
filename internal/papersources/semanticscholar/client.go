package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests (100 req/5 min).
	// With an API key, this can be increased.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of results per request.
	DefaultMaxResults = 100

	// maxReferences caps the reference list fetched for one paper.
	maxReferences = 1000

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,url,title,abstract,year,publicationDate,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf"

	// referenceFields is the list of fields requested for cited papers.
	referenceFields = "paperId,externalIds,title,year,authors"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"

	paperURLPrefix = "https://www.semanticscholar.org/paper/"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the maximum number of results to return per search.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var (
	_ papersources.PaperSource      = (*Client)(nil)
	_ papersources.ReferenceFetcher = (*Client)(nil)
)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:       string(domain.SourceTypeSemanticScholar),
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, searchURL, nil)
	if err != nil {
		return nil, err
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypeSemanticScholar), err)
	}

	papers := convertToPapers(searchResp.Data)

	// The API filters by whole years only.
	if params.DateFrom != nil || params.DateTo != nil {
		papers = filterByYear(papers, params.DateFrom, params.DateTo)
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Total,
		HasMore:        searchResp.Next > 0,
		NextOffset:     searchResp.Next,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// GetReferences lists the papers cited by the paper with the given DOI or
// Semantic Scholar ID.
func (c *Client) GetReferences(ctx context.Context, id string) ([]domain.Reference, error) {
	paperID := strings.TrimSpace(id)
	if doi := domain.NormalizeDOI(paperID); doi != "" {
		paperID = "DOI:" + doi
	}
	if paperID == "" {
		return nil, domain.NewValidationError("id", "paper identifier is required")
	}

	refURL := fmt.Sprintf("%s/paper/%s/references?fields=%s&limit=%d",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(paperID), referenceFields, maxReferences)

	body, err := c.httpClient.Get(ctx, refURL, nil)
	if err != nil {
		return nil, err
	}

	var resp ReferencesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypeSemanticScholar), err)
	}

	refs := make([]domain.Reference, 0, len(resp.Data))
	for _, entry := range resp.Data {
		cited := entry.CitedPaper
		if strings.TrimSpace(cited.Title) == "" {
			continue
		}
		ref := domain.Reference{
			Title:    strings.TrimSpace(cited.Title),
			Year:     cited.Year,
			Authors:  authorNames(cited.Authors),
			SourceID: cited.PaperID,
		}
		if cited.ExternalIDs != nil {
			ref.DOI = domain.NormalizeDOI(cited.ExternalIDs.DOI)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}
	q.Set("limit", strconv.Itoa(limit))

	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	if params.OpenAccessOnly {
		q.Set("openAccessPdf", "")
	}

	if yr := yearRange(params.DateFrom, params.DateTo); yr != "" {
		q.Set("year", yr)
	}

	if params.MinCitations > 0 {
		q.Set("minCitationCount", strconv.Itoa(params.MinCitations))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// yearRange formats the API's year filter: "2019-", "-2023" or "2019-2023".
func yearRange(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return fmt.Sprintf("%d-%d", from.Year(), to.Year())
	case from != nil:
		return fmt.Sprintf("%d-", from.Year())
	case to != nil:
		return fmt.Sprintf("-%d", to.Year())
	default:
		return ""
	}
}

func convertToPapers(results []PaperResult) []*domain.Paper {
	papers := make([]*domain.Paper, 0, len(results))
	for _, result := range results {
		if paper := convertToPaper(result); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers
}

// convertToPaper converts a single API paper result to a domain paper.
// Results without a title are dropped.
func convertToPaper(result PaperResult) *domain.Paper {
	title := strings.TrimSpace(result.Title)
	if title == "" {
		return nil
	}

	paper := &domain.Paper{
		Source:        domain.SourceTypeSemanticScholar,
		SourceID:      result.PaperID,
		Title:         title,
		Abstract:      strings.TrimSpace(result.Abstract),
		Authors:       authorNames(result.Authors),
		Year:          result.Year,
		Venue:         strings.TrimSpace(result.Venue),
		URL:           result.URL,
		CitationCount: result.CitationCount,
		OpenAccess:    result.IsOpenAccess,
	}

	if paper.Venue == "" && result.Journal != nil {
		paper.Venue = strings.TrimSpace(result.Journal.Name)
	}
	if paper.URL == "" && result.PaperID != "" {
		paper.URL = paperURLPrefix + result.PaperID
	}
	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}
	if result.ExternalIDs != nil {
		paper.DOI = domain.NormalizeDOI(result.ExternalIDs.DOI)
	}
	paper.IsPreprint = isPreprintVenue(paper.Venue) ||
		(paper.DOI == "" && result.ExternalIDs != nil && result.ExternalIDs.ArXiv != "")

	return paper
}

func authorNames(apiAuthors []Author) []string {
	names := make([]string, 0, len(apiAuthors))
	for _, a := range apiAuthors {
		if name := strings.TrimSpace(a.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func isPreprintVenue(venue string) bool {
	v := strings.ToLower(venue)
	return strings.Contains(v, "arxiv") || strings.Contains(v, "biorxiv") || strings.Contains(v, "medrxiv")
}

// filterByYear drops papers outside the requested year bounds. Papers with
// an unknown year are kept.
func filterByYear(papers []*domain.Paper, dateFrom, dateTo *time.Time) []*domain.Paper {
	filtered := make([]*domain.Paper, 0, len(papers))
	for _, paper := range papers {
		if paper.Year == 0 {
			filtered = append(filtered, paper)
			continue
		}
		if dateFrom != nil && paper.Year < dateFrom.Year() {
			continue
		}
		if dateTo != nil && paper.Year > dateTo.Year() {
			continue
		}
		filtered = append(filtered, paper)
	}
	return filtered
}

// BuildSearchQuery is a helper to construct boolean search queries.
// Semantic Scholar supports standard boolean operators: AND, OR, NOT.
func BuildSearchQuery(terms []string, operator string) string {
	if len(terms) == 0 {
		return ""
	}
	if len(terms) == 1 {
		return terms[0]
	}

	op := strings.ToUpper(operator)
	if op != "AND" && op != "OR" {
		op = "AND"
	}

	return strings.Join(terms, " "+op+" ")
}
