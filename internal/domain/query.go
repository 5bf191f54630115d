package domain

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultResultCount is used when SearchOptions.Limit is zero.
const DefaultResultCount = 20

// SearchOptions are the caller-supplied filters for one search invocation.
type SearchOptions struct {
	// Limit is the number of ranked papers returned.
	Limit int `json:"limit"`
	// YearFrom and YearTo bound the publication year, inclusive. Zero means unbounded.
	YearFrom int `json:"year_from"`
	YearTo   int `json:"year_to"`
	// OpenAccessOnly restricts providers to open-access works where supported.
	OpenAccessOnly bool `json:"open_access_only"`
	// FastMode shortens every provider timeout.
	FastMode bool `json:"fast_mode"`
	// Sources is the provider allow-list. Empty means every supported provider.
	Sources []SourceType `json:"sources"`
}

// ResultCount returns Limit or DefaultResultCount when unset.
func (o SearchOptions) ResultCount() int {
	if o.Limit <= 0 {
		return DefaultResultCount
	}
	return o.Limit
}

// Fingerprint returns a stable string covering every option that changes
// what a provider returns. The provider allow-list and fast mode are excluded.
func (o SearchOptions) Fingerprint() string {
	return fmt.Sprintf("n=%d|y=%d-%d|oa=%t", o.ResultCount(), o.YearFrom, o.YearTo, o.OpenAccessOnly)
}

// Validate checks option consistency.
func (o SearchOptions) Validate() error {
	if o.Limit < 0 {
		return NewValidationError("limit", "must not be negative")
	}
	if o.YearFrom != 0 && o.YearTo != 0 && o.YearFrom > o.YearTo {
		return NewValidationError("year_from", "must not be after year_to")
	}
	return nil
}

// SearchQuery is one immutable search invocation.
type SearchQuery struct {
	Text    string
	Options SearchOptions
}

// NormalizeQuery lower-cases the query and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// SortSources orders sources by SourcePriority.
func SortSources(sources []SourceType) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})
}
