package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// maxReferenceBatch is the number of OpenAlex IDs resolved per request
	// when listing references.
	maxReferenceBatch = 50

	openAlexIDPrefix = "https://openalex.org/"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool. It is sent as the
	// mailto parameter and in the User-Agent.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	// Maximum is 200 per OpenAlex API.
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

// Client implements papersources.PaperSource for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.PaperSource      = (*Client)(nil)
	_ papersources.ReferenceFetcher = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "Helixir-PaperSearch/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeOpenAlex),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: userAgent,
	})

	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for papers matching the given parameters.
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
		return nil, domain.NewParseError(string(domain.SourceTypeOpenAlex), err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if paper := workToPaper(&searchResp.Results[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	nextOffset := params.Offset + len(searchResp.Results)

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Meta.Count,
		HasMore:        nextOffset < searchResp.Meta.Count,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// GetReferences lists the works cited by the work identified by a DOI or
// OpenAlex ID. Referenced works are resolved in batches.
func (c *Client) GetReferences(ctx context.Context, id string) ([]domain.Reference, error) {
	workURL, err := c.buildWorkURL(id, "id,referenced_works")
	if err != nil {
		return nil, fmt.Errorf("building work URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, workURL, nil)
	if err != nil {
		return nil, err
	}

	var work Work
	if err := json.Unmarshal(body, &work); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypeOpenAlex), err)
	}

	refs := make([]domain.Reference, 0, len(work.ReferencedWorks))
	for start := 0; start < len(work.ReferencedWorks); start += maxReferenceBatch {
		end := start + maxReferenceBatch
		if end > len(work.ReferencedWorks) {
			end = len(work.ReferencedWorks)
		}

		batch, err := c.fetchWorks(ctx, work.ReferencedWorks[start:end])
		if err != nil {
			return nil, err
		}
		refs = append(refs, batch...)
	}
	return refs, nil
}

func (c *Client) fetchWorks(ctx context.Context, ids []string) ([]domain.Reference, error) {
	short := make([]string, 0, len(ids))
	for _, id := range ids {
		short = append(short, normalizeOpenAlexID(id))
	}

	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"
	query := url.Values{}
	query.Set("filter", "openalex_id:"+strings.Join(short, "|"))
	query.Set("per_page", strconv.Itoa(len(short)))
	query.Set("select", "id,doi,display_name,publication_year,authorships")
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = query.Encode()

	body, err := c.httpClient.Get(ctx, baseURL.String(), nil)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypeOpenAlex), err)
	}

	refs := make([]domain.Reference, 0, len(resp.Results))
	for _, w := range resp.Results {
		refs = append(refs, domain.Reference{
			Title:    w.DisplayName,
			DOI:      domain.NormalizeDOI(w.DOI),
			Year:     w.PublicationYear,
			Authors:  authorNames(w.Authorships),
			SourceID: normalizeOpenAlexID(w.ID),
		})
	}
	return refs, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return "OpenAlex"
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = "/works"

	query := url.Values{}
	if params.Query != "" {
		query.Set("search", params.Query)
	}

	if filters := buildFilters(params); len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}

	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > 200 {
		maxResults = 200
	}
	query.Set("per_page", strconv.Itoa(maxResults))

	// OpenAlex uses page-based pagination (1-indexed).
	if params.Offset > 0 {
		query.Set("page", strconv.Itoa(params.Offset/maxResults+1))
	}

	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildFilters constructs the filter query string components.
func buildFilters(params papersources.SearchParams) []string {
	var filters []string

	if params.DateFrom != nil {
		filters = append(filters, "from_publication_date:"+params.DateFrom.Format("2006-01-02"))
	}
	if params.DateTo != nil {
		filters = append(filters, "to_publication_date:"+params.DateTo.Format("2006-01-02"))
	}
	if params.OpenAccessOnly {
		filters = append(filters, "is_oa:true")
	}
	if params.MinCitations > 0 {
		filters = append(filters, fmt.Sprintf("cited_by_count:>%d", params.MinCitations-1))
	}
	if !params.IncludePreprints {
		filters = append(filters, "type:!preprint")
	}

	return filters
}

// buildWorkURL constructs the URL for a single work addressed by DOI or OpenAlex ID.
func (c *Client) buildWorkURL(id, selectFields string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	workID := normalizeOpenAlexID(id)
	if doi := domain.NormalizeDOI(id); doi != "" {
		workID = "https://doi.org/" + doi
	}
	baseURL.Path = "/works/" + workID

	query := url.Values{}
	if selectFields != "" {
		query.Set("select", selectFields)
	}
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = query.Encode()

	return baseURL.String(), nil
}

// workToPaper converts an OpenAlex Work to a domain Paper.
// Works without a title are dropped.
func workToPaper(work *Work) *domain.Paper {
	title := strings.TrimSpace(work.DisplayName)
	if title == "" {
		title = strings.TrimSpace(work.Title)
	}
	if title == "" {
		return nil
	}

	doi := domain.NormalizeDOI(work.DOI)
	if doi == "" {
		doi = domain.NormalizeDOI(work.IDs.DOI)
	}

	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	var venue, landing, pdfURL string
	if loc := work.PrimaryLocation; loc != nil {
		if loc.Source != nil {
			venue = loc.Source.DisplayName
		}
		landing = loc.LandingPageURL
	}
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		pdfURL = work.OpenAccess.OAURL
	} else if work.PrimaryLocation != nil {
		pdfURL = work.PrimaryLocation.PDFURL
	}
	if landing == "" {
		if doi != "" {
			landing = "https://doi.org/" + doi
		} else {
			landing = work.ID
		}
	}

	isOpenAccess := work.IsOpenAccess
	if work.OpenAccess != nil {
		isOpenAccess = work.OpenAccess.IsOA
	}

	return &domain.Paper{
		Source:        domain.SourceTypeOpenAlex,
		SourceID:      openAlexID,
		Title:         title,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		Authors:       authorNames(work.Authorships),
		Year:          work.PublicationYear,
		Venue:         venue,
		DOI:           doi,
		URL:           landing,
		PDFURL:        pdfURL,
		CitationCount: work.CitedByCount,
		OpenAccess:    isOpenAccess,
		IsPreprint:    work.Type == "preprint" || (work.PrimaryLocation != nil && work.PrimaryLocation.Version == "submittedVersion"),
	}
}

func authorNames(authorships []Authorship) []string {
	names := make([]string, 0, len(authorships))
	for _, a := range authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix))
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index, which maps each word to the positions it occupies.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos == pairs[j].pos {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
