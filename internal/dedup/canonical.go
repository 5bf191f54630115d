// Package dedup assigns content-derived identities to paper records and
// merges duplicate records returned by different providers.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// canonicalIDLength is the number of hex characters kept from the digest.
const canonicalIDLength = 32

// CanonicalID returns the identity of p. Records with a DOI hash the
// normalized DOI, so every provider's copy of the same DOI agrees. Records
// without one hash the normalized title, the year and the source.
func CanonicalID(p *domain.Paper) string {
	if doi := domain.NormalizeDOI(p.DOI); doi != "" {
		return digest("doi:" + doi)
	}
	return titleID(p)
}

// VersionID returns an identity that tells p apart from other versions
// filed under the same DOI, such as a preprint carrying its journal DOI:
// the source plus the provider's record id, or the title-based identity
// when the provider gave no id.
func VersionID(p *domain.Paper) string {
	if p.SourceID != "" {
		return digest("source:" + string(p.Source) + "|" + p.SourceID)
	}
	return titleID(p)
}

func titleID(p *domain.Paper) string {
	return digest("title:" + domain.NormalizeTitle(p.Title) + "|" + strconv.Itoa(p.Year) + "|" + string(p.Source))
}

// Canonicalize returns a copy of p carrying its canonical ID.
func Canonicalize(p *domain.Paper) *domain.Paper {
	cp := p.Clone()
	cp.CanonicalID = CanonicalID(p)
	return cp
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:canonicalIDLength]
}
