package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// maxResponseBytes caps every provider response body.
const maxResponseBytes = 10 << 20

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the provider in returned errors.
	Source string

	// Timeout is the transport-level timeout for a single request. The
	// resilience layer normally applies a shorter per-call deadline.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MinRateLimit is the floor the client throttles down to after 429s.
	MinRateLimit float64

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "X-API-Key").
	APIKeyHeader string
}

// HTTPClient wraps http.Client with client-side rate limiting and maps
// provider status codes onto the domain error taxonomy. It performs exactly
// one attempt per call. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig

	mu sync.Mutex
}

// NewHTTPClient creates a new HTTP client with rate limiting.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MinRateLimit == 0 || cfg.MinRateLimit > cfg.RateLimit {
		cfg.MinRateLimit = cfg.RateLimit / 8
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-PaperSearch/1.0"
	}
	if cfg.Source == "" {
		cfg.Source = "provider"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request after waiting for the rate limiter.
//
// A 2xx response is returned to the caller, who must close the body.
// A 429 response becomes *domain.RateLimitError carrying the Retry-After
// duration when the provider declared one, and halves the client's request
// rate down to MinRateLimit. Any other non-2xx response becomes
// *domain.ExternalAPIError. Transport failures are returned wrapped.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: request failed: %w", c.config.Source, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.restore()
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode == http.StatusTooManyRequests {
		c.throttle()
		return nil, domain.NewRateLimitError(c.config.Source, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, domain.NewExternalAPIError(c.config.Source, resp.StatusCode, msg, nil)
}

// Get issues a GET request for url and returns the response body.
func (c *HTTPClient) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.config.Source, err)
	}
	return body, nil
}

// CurrentRate returns the client's current request rate.
func (c *HTTPClient) CurrentRate() float64 {
	return c.rateLimiter.Rate()
}

func (c *HTTPClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.rateLimiter.Rate() / 2
	if next < c.config.MinRateLimit {
		next = c.config.MinRateLimit
	}
	c.rateLimiter.SetRate(next)
}

func (c *HTTPClient) restore() {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.rateLimiter.Rate()
	if current >= c.config.RateLimit {
		return
	}
	next := current * 1.25
	if next > c.config.RateLimit {
		next = c.config.RateLimit
	}
	c.rateLimiter.SetRate(next)
}

// ParseRetryAfter interprets a Retry-After header as either delta-seconds or
// an HTTP date relative to now. It returns zero when the header is absent,
// malformed or already in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := t.Sub(now); delay > 0 {
			return delay
		}
	}

	return 0
}
