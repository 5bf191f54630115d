// Package domain provides the core types shared by the paper search engine:
// paper records, ranked results, search options, provider identity and errors.
package domain

import "time"

// SourceType identifies the external bibliographic provider that produced a record.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeScopus          SourceType = "scopus"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeBioRxiv         SourceType = "biorxiv"
	SourceTypeArXiv           SourceType = "arxiv"
)

// SourcePriority is the fixed provider order used for fan-out and for
// tie-breaking between duplicates with equal citation counts. Fastest and
// most reliable providers come first.
var SourcePriority = []SourceType{
	SourceTypeOpenAlex,
	SourceTypeSemanticScholar,
	SourceTypePubMed,
	SourceTypeArXiv,
	SourceTypeBioRxiv,
	SourceTypeScopus,
}

// Priority returns the position of the source in SourcePriority.
// Unknown sources sort after every known one.
func (s SourceType) Priority() int {
	for i, st := range SourcePriority {
		if st == s {
			return i
		}
	}
	return len(SourcePriority)
}

// IsPreprintServer reports whether every record from this source is a preprint.
func (s SourceType) IsPreprintServer() bool {
	return s == SourceTypeArXiv || s == SourceTypeBioRxiv
}

// IsKnown reports whether the source is one the engine supports.
func (s SourceType) IsKnown() bool {
	return s.Priority() < len(SourcePriority)
}

// BreakerState is the circuit breaker state of a provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// ProviderHealth is a point-in-time view of one provider's breaker.
type ProviderHealth struct {
	Source              SourceType   `json:"source"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalFailures       int64        `json:"total_failures"`
	TotalSuccesses      int64        `json:"total_successes"`
	LastTransition      time.Time    `json:"last_transition"`
}
