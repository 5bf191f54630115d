package biorxiv

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
	// DefaultBaseURL is the default Europe PMC API base URL.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 100

	// maxPageSize is the Europe PMC page size limit.
	maxPageSize = 1000

	sourceName = "bioRxiv"
)

// DefaultServers are the preprint servers searched when none are configured.
var DefaultServers = []string{"bioRxiv", "medRxiv"}

// Config holds configuration for the bioRxiv/medRxiv client.
type Config struct {
	// BaseURL is the Europe PMC API base URL.
	BaseURL string

	// Servers are the preprint server names used in the PUBLISHER filter.
	Servers []string

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
	if len(c.Servers) == 0 {
		c.Servers = DefaultServers
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

// Client implements the papersources.PaperSource interface for bioRxiv/medRxiv
// using the Europe PMC API as a proxy.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new bioRxiv/medRxiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeBioRxiv),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new bioRxiv/medRxiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Europe PMC for bioRxiv/medRxiv papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

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
		return nil, domain.NewParseError(string(domain.SourceTypeBioRxiv), err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.ResultList.Result))
	for i := range searchResp.ResultList.Result {
		if paper := articleToPaper(&searchResp.ResultList.Result[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	nextOffset := params.Offset + len(searchResp.ResultList.Result)

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.HitCount,
		HasMore:        nextOffset < searchResp.HitCount,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypeBioRxiv,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeBioRxiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the Europe PMC search API URL.
// Europe PMC pages with a cursor; offsets are mapped onto page numbers.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search"

	// {query} AND (SRC:PPR) AND (PUBLISHER:"bioRxiv" OR PUBLISHER:"medRxiv")
	queryParts := []string{
		"(" + params.Query + ")",
		"(SRC:PPR)",
		publisherFilter(c.config.Servers),
	}
	if params.DateFrom != nil || params.DateTo != nil {
		queryParts = append(queryParts, buildDateFilter(params.DateFrom, params.DateTo))
	}
	if params.OpenAccessOnly {
		queryParts = append(queryParts, "(OPEN_ACCESS:Y)")
	}

	pageSize := params.MaxResults
	if pageSize <= 0 {
		pageSize = c.config.MaxResults
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	urlQuery := url.Values{}
	urlQuery.Set("query", strings.Join(queryParts, " AND "))
	urlQuery.Set("format", "json")
	urlQuery.Set("resultType", "core")
	urlQuery.Set("pageSize", strconv.Itoa(pageSize))
	if params.Offset > 0 {
		urlQuery.Set("page", strconv.Itoa(params.Offset/pageSize+1))
	}

	baseURL.RawQuery = urlQuery.Encode()
	return baseURL.String(), nil
}

func publisherFilter(servers []string) string {
	parts := make([]string, 0, len(servers))
	for _, s := range servers {
		parts = append(parts, fmt.Sprintf(`PUBLISHER:"%s"`, s))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// buildDateFilter constructs the Europe PMC date filter string.
func buildDateFilter(from, to *time.Time) string {
	fromStr, toStr := "*", "*"
	if from != nil {
		fromStr = from.Format("2006-01-02")
	}
	if to != nil {
		toStr = to.Format("2006-01-02")
	}
	return fmt.Sprintf("(FIRST_PDATE:[%s TO %s])", fromStr, toStr)
}

// articleToPaper converts a Europe PMC Article to a domain Paper.
// Articles without a title are dropped.
func articleToPaper(article *Article) *domain.Paper {
	if article == nil {
		return nil
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		return nil
	}

	doi := domain.NormalizeDOI(article.DOI)

	var pubYear int
	if article.FirstPublicationDate != "" {
		if t, err := time.Parse("2006-01-02", article.FirstPublicationDate); err == nil {
			pubYear = t.Year()
		}
	}
	if pubYear == 0 && article.PubYear != "" {
		pubYear, _ = strconv.Atoi(article.PubYear)
	}

	server := strings.TrimSpace(article.PublisherName)
	if server == "" {
		server = sourceName
	}

	var landing, pdfURL string
	if doi != "" {
		host := "https://www.biorxiv.org"
		if strings.EqualFold(server, "medRxiv") {
			host = "https://www.medrxiv.org"
		}
		landing = host + "/content/" + doi
		pdfURL = landing + ".full.pdf"
	} else if article.ID != "" {
		landing = "https://europepmc.org/article/PPR/" + article.ID
	}

	return &domain.Paper{
		Source:        domain.SourceTypeBioRxiv,
		SourceID:      strings.TrimSpace(article.ID),
		Title:         title,
		Abstract:      strings.TrimSpace(article.AbstractText),
		Authors:       parseAuthorString(article.AuthorString),
		Year:          pubYear,
		Venue:         server,
		DOI:           doi,
		URL:           landing,
		PDFURL:        pdfURL,
		CitationCount: article.CitedByCount,
		OpenAccess:    article.IsOpenAccess != "N",
		IsPreprint:    true,
	}
}

// parseAuthorString parses the Europe PMC authorString field.
// Europe PMC separates authors with ", " and ends the list with a period.
func parseAuthorString(authorString string) []string {
	authorString = strings.TrimSuffix(strings.TrimSpace(authorString), ".")
	if authorString == "" {
		return []string{}
	}

	parts := strings.Split(authorString, ", ")
	authors := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
