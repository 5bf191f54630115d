// Package unpaywall resolves open-access PDF links for DOIs through the
// Unpaywall REST API, falling back to the citation_pdf_url meta tag that
// publisher landing pages expose for indexers.
package unpaywall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const (
	// DefaultBaseURL is the Unpaywall v2 API base URL.
	DefaultBaseURL = "https://api.unpaywall.org/v2"

	// DefaultRateLimit keeps well under the documented 100k requests per day.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	sourceName = "unpaywall"
)

// Config holds configuration for the resolver.
type Config struct {
	// BaseURL is the Unpaywall API base URL.
	BaseURL string

	// Email is required by Unpaywall on every request.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// ScrapeLandingPages enables the citation_pdf_url fallback.
	ScrapeLandingPages bool
}

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
}

// Response is the subset of the Unpaywall DOI object the resolver reads.
type Response struct {
	DOI            string     `json:"doi"`
	IsOA           bool       `json:"is_oa"`
	BestOALocation *Location  `json:"best_oa_location"`
	OALocations    []Location `json:"oa_locations"`
}

// Location is one open-access copy of a work.
type Location struct {
	URL               string `json:"url"`
	URLForPDF         string `json:"url_for_pdf"`
	URLForLandingPage string `json:"url_for_landing_page"`
	HostType          string `json:"host_type"`
}

// Resolver looks up direct PDF URLs for DOIs. It is safe for concurrent use.
type Resolver struct {
	config  Config
	api     *papersources.HTTPClient
	landing *papersources.HTTPClient
}

// New creates a resolver with its own rate-limited HTTP clients.
func New(cfg Config) *Resolver {
	cfg.applyDefaults()

	api := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: int(cfg.RateLimit),
	})
	landing := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    "landing-page",
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: int(cfg.RateLimit),
		UserAgent: "Mozilla/5.0 (compatible; Helixir-PaperSearch/1.0)",
	})
	return NewWithHTTPClients(cfg, api, landing)
}

// NewWithHTTPClients creates a resolver with caller-supplied HTTP clients.
func NewWithHTTPClients(cfg Config, api, landing *papersources.HTTPClient) *Resolver {
	cfg.applyDefaults()
	return &Resolver{config: cfg, api: api, landing: landing}
}

// ResolvePDF returns a direct PDF URL for doi, or "" when no open-access
// copy is known. A DOI unknown to Unpaywall is not an error.
func (r *Resolver) ResolvePDF(ctx context.Context, doi string) (string, error) {
	normalized := domain.NormalizeDOI(doi)
	if normalized == "" {
		return "", domain.NewValidationError("doi", "a valid DOI is required")
	}

	resp, err := r.lookup(ctx, normalized)
	if err != nil {
		var apiErr *domain.ExternalAPIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return "", err
		}
		resp = &Response{DOI: normalized}
	}

	if pdfURL := bestPDF(resp); pdfURL != "" {
		return pdfURL, nil
	}

	if !r.config.ScrapeLandingPages {
		return "", nil
	}

	landingURL := "https://doi.org/" + normalized
	if resp.BestOALocation != nil && resp.BestOALocation.URLForLandingPage != "" {
		landingURL = resp.BestOALocation.URLForLandingPage
	}

	pdfURL, err := r.scrapeLanding(ctx, landingURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Landing pages are best effort.
		return "", nil
	}
	return pdfURL, nil
}

func (r *Resolver) lookup(ctx context.Context, doi string) (*Response, error) {
	u, err := url.Parse(strings.TrimRight(r.config.BaseURL, "/") + "/" + doi)
	if err != nil {
		return nil, fmt.Errorf("parsing lookup URL: %w", err)
	}
	q := u.Query()
	q.Set("email", r.config.Email)
	u.RawQuery = q.Encode()

	body, err := r.api.Get(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewParseError(sourceName, err)
	}
	return &resp, nil
}

// bestPDF prefers the best location's PDF and then any other location's.
func bestPDF(resp *Response) string {
	if resp.BestOALocation != nil && resp.BestOALocation.URLForPDF != "" {
		return resp.BestOALocation.URLForPDF
	}
	for _, loc := range resp.OALocations {
		if loc.URLForPDF != "" {
			return loc.URLForPDF
		}
	}
	return ""
}

func (r *Resolver) scrapeLanding(ctx context.Context, landingURL string) (string, error) {
	body, err := r.landing.Get(ctx, landingURL, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return "", err
	}
	return ExtractCitationPDF(body, landingURL)
}

// ExtractCitationPDF returns the citation_pdf_url meta tag of an HTML page,
// resolved against pageURL. It returns "" when the tag is absent.
func ExtractCitationPDF(html []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse landing page: %w", err)
	}

	content, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return "", nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return content, nil
	}
	ref, err := url.Parse(content)
	if err != nil {
		return "", nil
	}
	return base.ResolveReference(ref).String(), nil
}
