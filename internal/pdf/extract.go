package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// ErrNoText is returned when a PDF parses but yields no text, typically a
// scanned document.
var ErrNoText = errors.New("pdf: no extractable text")

// ExtractorConfig bounds text extraction.
type ExtractorConfig struct {
	// MaxPages stops extraction after this many pages. Default: 60.
	MaxPages int `mapstructure:"max_pages"`
	// MaxChars truncates the extracted text. Default: 200000.
	MaxChars int `mapstructure:"max_chars"`
}

// Extractor downloads a PDF and returns its plain text.
type Extractor struct {
	downloader *Downloader
	cfg        ExtractorConfig
	logger     zerolog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(downloader *Downloader, cfg ExtractorConfig, logger zerolog.Logger) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 60
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 200000
	}
	return &Extractor{
		downloader: downloader,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pdf_extractor").Logger(),
	}
}

// Extract downloads url and returns its normalized text.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	doc, err := e.downloader.Download(ctx, url)
	if err != nil {
		return "", err
	}

	text, pages, err := ExtractText(doc.Content, e.cfg.MaxPages)
	if err != nil {
		return "", err
	}
	if len(text) > e.cfg.MaxChars {
		text = truncateRunes(text, e.cfg.MaxChars)
	}

	e.logger.Debug().
		Str("url", url).
		Str("content_hash", doc.ContentHash).
		Int64("size_bytes", doc.Size()).
		Int("pages", pages).
		Int("chars", len(text)).
		Msg("extracted pdf text")
	return text, nil
}

// ExtractText returns the plain text of the first maxPages pages of a PDF
// (all pages when maxPages is not positive) and the number of pages read.
func ExtractText(content []byte, maxPages int) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("pdf: open: %w", err)
	}

	numPages := r.NumPage()
	if maxPages > 0 && numPages > maxPages {
		numPages = maxPages
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("pdf: page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteByte('\n')
		pages++
	}

	text = NormalizeWhitespace(b.String())
	if text == "" {
		return "", pages, ErrNoText
	}
	return text, pages, nil
}

// NormalizeWhitespace collapses runs of spaces and tabs, keeps paragraph
// breaks and re-joins words hyphenated across line ends.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "-\n", "")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
