package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 100

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"

	defaultTool = "helixir-paper-search"

	// openAccessFilter restricts esearch to records with free full text.
	openAccessFilter = "free full text[sb]"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Email and Tool identify the caller to NCBI.
	Email string
	Tool  string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	// With an API key, you can increase this to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the default maximum results per search.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
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
	if c.Tool == "" {
		c.Tool = defaultTool
	}
}

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypePubMed),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}
	if cfg.Email != "" {
		httpCfg.UserAgent = "Helixir-PaperSearch/1.0 (mailto:" + cfg.Email + ")"
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for papers matching the given parameters.
// It performs a two-step search:
// 1. esearch.fcgi - retrieves PMIDs matching the query
// 2. efetch.fcgi - retrieves full article metadata for the PMIDs
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, err
	}

	empty := &papersources.SearchResult{
		Papers:     []*domain.Paper{},
		NextOffset: params.Offset,
		Source:     domain.SourceTypePubMed,
	}

	// A phrase that matches nothing is reported as an error list, not a failure.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		empty.SearchDuration = time.Since(startTime)
		return empty, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		empty.TotalResults = searchResult.Count
		empty.SearchDuration = time.Since(startTime)
		return empty, nil
	}

	articles, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(articles.Articles))
	for _, article := range articles.Articles {
		if paper := articleToPaper(article); paper != nil {
			papers = append(papers, paper)
		}
	}

	nextOffset := params.Offset + len(searchResult.IDList.IDs)

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResult.Count,
		HasMore:        nextOffset < searchResult.Count,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, params papersources.SearchParams) (*ESearchResult, error) {
	// Build URL with query parameters
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	term := params.Query
	if params.OpenAccessOnly {
		term = "(" + term + ") AND " + openAccessFilter
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("usehistory", "n")

	// Set result limits
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}
	q.Set("retmax", strconv.Itoa(maxResults))

	if params.Offset > 0 {
		q.Set("retstart", strconv.Itoa(params.Offset))
	}

	// Add date filters if provided
	if params.DateFrom != nil || params.DateTo != nil {
		q.Set("datetype", "pdat") // Publication date

		if params.DateFrom != nil {
			q.Set("mindate", params.DateFrom.Format("2006/01/02"))
		}
		if params.DateTo != nil {
			q.Set("maxdate", params.DateTo.Format("2006/01/02"))
		}
	}

	c.setIdentity(q)
	u.RawQuery = q.Encode()

	body, err := c.httpClient.Get(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var result ESearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypePubMed), err)
	}

	return &result, nil
}

// efetch retrieves full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	// Build URL with query parameters
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	c.setIdentity(q)
	u.RawQuery = q.Encode()

	body, err := c.httpClient.Get(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var result PubmedArticleSet
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.NewParseError(string(domain.SourceTypePubMed), err)
	}

	return &result, nil
}

// setIdentity adds the tool, email and API key parameters NCBI asks callers to send.
func (c *Client) setIdentity(q url.Values) {
	q.Set("tool", c.config.Tool)
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
}

// articleToPaper converts a PubmedArticle to a domain.Paper.
// Articles without a title are dropped.
func articleToPaper(article PubmedArticle) *domain.Paper {
	citation := article.MedlineCitation
	pubmedData := article.PubmedData

	title := strings.Join(strings.Fields(citation.Article.ArticleTitle), " ")
	if title == "" {
		return nil
	}

	pmid := strings.TrimSpace(citation.PMID.Value)

	var pmcid string
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" {
			pmcid = strings.TrimSpace(aid.Value)
			break
		}
	}

	venue := citation.Article.Journal.Title
	if venue == "" {
		venue = citation.Article.Journal.ISOAbbreviation
	}

	paper := &domain.Paper{
		Source:     domain.SourceTypePubMed,
		SourceID:   pmid,
		Title:      title,
		Abstract:   extractAbstract(citation.Article.Abstract),
		Authors:    extractAuthors(citation.Article.AuthorList),
		Year:       extractPublicationYear(citation.Article),
		Venue:      strings.TrimSpace(venue),
		DOI:        domain.NormalizeDOI(extractDOI(citation.Article, pubmedData)),
		OpenAccess: pmcid != "",
		IsPreprint: isPreprint(citation.Article.PublicationTypeList),
	}
	if pmid != "" {
		paper.URL = "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	}
	if pmcid != "" {
		paper.PDFURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pmcid + "/pdf/"
	}

	return paper
}

func isPreprint(types *PublicationTypeList) bool {
	if types == nil {
		return false
	}
	for _, pt := range types.PublicationTypes {
		if strings.EqualFold(strings.TrimSpace(pt.Value), "Preprint") {
			return true
		}
	}
	return false
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	// Check ELocationID first
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	// Check ArticleIdList
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractPublicationYear returns the electronic publication year when
// present, otherwise the journal issue year. Zero means unknown.
func extractPublicationYear(article Article) int {
	for _, ad := range article.ArticleDate {
		if ad.DateType == "epublish" || ad.DateType == "Electronic" || ad.DateType == "" {
			if y, err := strconv.Atoi(strings.TrimSpace(ad.Year)); err == nil && y > 0 {
				return y
			}
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate

	// MedlineDate covers free-form dates such as "2020 Jan-Feb".
	if pubDate.MedlineDate != "" {
		if year := extractYearFromMedlineDate(pubDate.MedlineDate); year > 0 {
			return year
		}
	}

	if y, err := strconv.Atoi(strings.TrimSpace(pubDate.Year)); err == nil && y > 0 {
		return y
	}
	return 0
}

// extractYearFromMedlineDate extracts the year from a MedlineDate string.
func extractYearFromMedlineDate(medlineDate string) int {
	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	parts := strings.Fields(medlineDate)
	if len(parts) > 0 {
		// Try the first part as a year
		yearStr := strings.Split(parts[0], "-")[0]
		if year, err := strconv.Atoi(yearStr); err == nil {
			return year
		}
	}
	return 0
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	// If only one section without label, return it directly
	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	// Concatenate multiple sections with labels
	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors returns display names for the valid authors.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil {
		return []string{}
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		name := strings.TrimSpace(a.CollectiveName)
		if name == "" {
			name = strings.TrimSpace(strings.TrimSpace(a.ForeName) + " " + strings.TrimSpace(a.LastName))
		}
		if name != "" {
			authors = append(authors, name)
		}
	}

	return authors
}
