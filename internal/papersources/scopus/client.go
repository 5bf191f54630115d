package scopus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const (
	// DefaultBaseURL is the default Scopus API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// apiKeyHeader is the HTTP header name for the Scopus API key.
	apiKeyHeader = "X-ELS-APIKey"

	// sourceName is the human-readable name for this source.
	sourceName = "Scopus"
)

// Config holds configuration for the Scopus client.
type Config struct {
	// BaseURL is the Scopus API base URL.
	BaseURL string

	// APIKey is the Elsevier API key for authentication.
	// Required for all Scopus API requests.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.PaperSource interface for Scopus.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new Scopus client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:       string(domain.SourceTypeScopus),
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Scopus client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Scopus for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, searchURL, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, err
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypeScopus), err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.SearchResults.Entries))
	for i := range searchResp.SearchResults.Entries {
		if paper := entryToPaper(&searchResp.SearchResults.Entries[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	totalResults, _ := strconv.Atoi(searchResp.SearchResults.TotalResults)
	nextOffset := params.Offset + len(searchResp.SearchResults.Entries)

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   totalResults,
		HasMore:        nextOffset < totalResults,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypeScopus,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeScopus
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
// Scopus requires an API key, so it returns false if the key is empty.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// buildSearchURL constructs the Scopus search API URL.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/scopus"

	queryParts := []string{fmt.Sprintf("TITLE-ABS-KEY(%s)", params.Query)}

	// Date filter (year-based ranges)
	if params.DateFrom != nil && params.DateTo != nil {
		queryParts = append(queryParts, fmt.Sprintf("PUBYEAR > %d AND PUBYEAR < %d",
			params.DateFrom.Year()-1, params.DateTo.Year()+1))
	} else if params.DateFrom != nil {
		queryParts = append(queryParts, fmt.Sprintf("PUBYEAR > %d", params.DateFrom.Year()-1))
	} else if params.DateTo != nil {
		queryParts = append(queryParts, fmt.Sprintf("PUBYEAR < %d", params.DateTo.Year()+1))
	}

	// Open access filter
	if params.OpenAccessOnly {
		queryParts = append(queryParts, "OPENACCESS(1)")
	}

	urlQuery := url.Values{}
	urlQuery.Set("query", strings.Join(queryParts, " AND "))
	urlQuery.Set("view", "COMPLETE")

	// Pagination
	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	urlQuery.Set("count", strconv.Itoa(maxResults))

	if params.Offset > 0 {
		urlQuery.Set("start", strconv.Itoa(params.Offset))
	}

	baseURL.RawQuery = urlQuery.Encode()
	return baseURL.String(), nil
}

// entryToPaper converts a Scopus entry to a domain Paper.
// Entries without a title are dropped; Scopus reports an empty result set
// as a single entry carrying only an "error" field.
func entryToPaper(entry *Entry) *domain.Paper {
	if entry == nil {
		return nil
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}

	scopusID := strings.TrimSpace(strings.TrimPrefix(entry.Identifier, "SCOPUS_ID:"))
	doi := domain.NormalizeDOI(entry.DOI)

	var pubYear int
	if len(entry.CoverDate) >= 4 {
		pubYear, _ = strconv.Atoi(entry.CoverDate[:4])
	}

	citationCount, _ := strconv.Atoi(entry.CitedByCount)

	var landing string
	switch {
	case doi != "":
		landing = "https://doi.org/" + doi
	case entry.EID != "":
		landing = "https://www.scopus.com/record/display.uri?origin=resultslist&eid=" + entry.EID
	}

	return &domain.Paper{
		Source:        domain.SourceTypeScopus,
		SourceID:      scopusID,
		Title:         title,
		Abstract:      strings.TrimSpace(entry.Description),
		Authors:       extractAuthors(entry),
		Year:          pubYear,
		Venue:         strings.TrimSpace(entry.PublicationName),
		DOI:           doi,
		URL:           landing,
		CitationCount: citationCount,
		OpenAccess:    entry.OpenAccessFlag || entry.OpenAccess == "1",
	}
}

// extractAuthors uses the COMPLETE view author list when available and
// falls back to dc:creator, which carries the first author only.
func extractAuthors(entry *Entry) []string {
	if entry.Authors != nil && len(entry.Authors.Authors) > 0 {
		authors := make([]string, 0, len(entry.Authors.Authors))
		for _, sa := range entry.Authors.Authors {
			name := strings.TrimSpace(sa.Name)
			if name == "" {
				name = strings.TrimSpace(strings.TrimSpace(sa.GivenName) + " " + strings.TrimSpace(sa.Surname))
			}
			if name != "" {
				authors = append(authors, name)
			}
		}
		return authors
	}

	if creator := strings.TrimSpace(entry.Creator); creator != "" {
		return []string{creator}
	}
	return []string{}
}
