// Package pdf downloads open-access PDFs and extracts their plain text.
package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotPDF is returned when the response Content-Type is not application/pdf.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the body exceeds the configured maximum.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrDownloadFailed covers network errors and non-2xx responses.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when a URL or redirect targets a private address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

const maxRedirects = 10

// Document is a downloaded PDF.
type Document struct {
	URL         string
	Content     []byte
	ContentHash string
	ContentType string
}

// Size returns the document size in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.Content))
}

// Config holds downloader configuration.
type Config struct {
	// Timeout bounds the whole request. Default: 60 seconds.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSize is the largest accepted body in bytes. Default: 50MB.
	MaxSize   int64  `mapstructure:"max_size"`
	UserAgent string `mapstructure:"user_agent"`
	// AllowPrivateNetworks disables private address checks. Tests only.
	AllowPrivateNetworks bool `mapstructure:"-"`
}

// Downloader fetches PDFs over HTTP.
type Downloader struct {
	client       *http.Client
	maxSize      int64
	userAgent    string
	allowPrivate bool
}

// NewDownloader creates a Downloader.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 50 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; PaperSearch/1.0)"
	}

	d := &Downloader{
		maxSize:      cfg.MaxSize,
		userAgent:    cfg.UserAgent,
		allowPrivate: cfg.AllowPrivateNetworks,
	}
	d.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: too many redirects", ErrSSRF)
			}
			return d.checkURL(req.URL)
		},
	}
	return d
}

// Download fetches rawURL and verifies it is a PDF within the size limit.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	if err := d.checkURL(parsed); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}

	sum := sha256.Sum256(content)
	return &Document{
		URL:         rawURL,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		ContentType: contentType,
	}, nil
}

func (d *Downloader) checkURL(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, u.Scheme)
	}
	if d.allowPrivate {
		return nil
	}

	host := u.Hostname()
	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", ErrDownloadFailed, host, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrSSRF, host, a)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
