package dedup

import (
	"sort"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// Stats describes one deduplication pass.
type Stats struct {
	Input        int
	Output       int
	Duplicates   int
	SiblingLinks int
}

// Deduplicate merges duplicate candidates. See DeduplicateStats.
func Deduplicate(papers []*domain.Paper) []domain.RankedPaper {
	out, _ := DeduplicateStats(papers)
	return out
}

// DeduplicateStats canonicalizes every candidate, orders them by citation
// count descending (provider priority, then input order, breaking ties) and
// walks the list once keeping the first record of each canonical ID.
//
// Preprint and journal records whose normalized titles match are not both
// kept: the journal version survives, carrying the preprint's canonical ID in
// PreprintID and every linked version in Siblings. When the preprint is seen
// first it is replaced in place by the journal version. Preprints of one
// title from several servers collapse onto the first, which lists the others
// in Siblings. The same links are made when a preprint carries its journal
// DOI and so shares the journal's canonical ID; the preprint is then
// referenced by its VersionID. A journal record lacking a DOI is folded into
// a same-titled journal record when their years agree and their author lists
// match. Discarded records donate their PDF URL to the survivor when it has
// none.
func DeduplicateStats(papers []*domain.Paper) ([]domain.RankedPaper, Stats) {
	stats := Stats{Input: len(papers)}

	candidates := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p != nil {
			candidates = append(candidates, Canonicalize(p))
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CitationCount != b.CitationCount {
			return a.CitationCount > b.CitationCount
		}
		return a.Source.Priority() < b.Source.Priority()
	})

	out := make([]domain.RankedPaper, 0, len(candidates))
	// canonical ID -> index in out
	seen := make(map[string]int, len(candidates))
	// normalized title -> index of the representative of that title
	versions := make(map[string]int, len(candidates))

	for _, p := range candidates {
		if idx, ok := seen[p.CanonicalID]; ok {
			// A preprint filed under its journal DOI shares the journal's
			// canonical ID and is linked by its version ID instead.
			rep := &out[idx]
			switch {
			case rep.Preprint() && !p.Preprint():
				promoteJournal(rep, p, VersionID(rep.Paper))
				stats.SiblingLinks++
			case p.Preprint() && !rep.Preprint():
				linkPreprint(rep, p, VersionID(p))
				stats.SiblingLinks++
			default:
				donatePDF(rep, p)
				stats.Duplicates++
			}
			continue
		}

		title := domain.NormalizeTitle(p.Title)
		idx, linked := versions[title]
		if title == "" || !linked {
			seen[p.CanonicalID] = len(out)
			if title != "" {
				versions[title] = len(out)
			}
			out = append(out, domain.RankedPaper{Paper: p})
			continue
		}

		rep := &out[idx]
		switch {
		case rep.Preprint() && !p.Preprint():
			promoteJournal(rep, p, rep.CanonicalID)
			seen[p.CanonicalID] = idx
			stats.SiblingLinks++
		case p.Preprint():
			// Another preprint server's copy, or the preprint of a kept
			// journal record.
			linkPreprint(rep, p, p.CanonicalID)
			seen[p.CanonicalID] = idx
			stats.SiblingLinks++
		case sameWork(rep.Paper, p):
			donatePDF(rep, p)
			seen[p.CanonicalID] = idx
			stats.Duplicates++
		default:
			// Two journal records under one title are distinct works
			// unless their canonical IDs agree.
			seen[p.CanonicalID] = len(out)
			out = append(out, domain.RankedPaper{Paper: p})
		}
	}

	stats.Output = len(out)
	return out, stats
}

// promoteJournal puts the journal version into the slot held by a preprint,
// which is then referenced by preprintID.
func promoteJournal(rep *domain.RankedPaper, journal *domain.Paper, preprintID string) {
	siblings := append([]string{preprintID}, rep.Siblings...)
	if rep.PDFURL != "" && journal.PDFURL == "" {
		journal = journal.WithPDFURL(rep.PDFURL)
	}
	*rep = domain.RankedPaper{Paper: journal, PreprintID: preprintID, Siblings: siblings}
}

// linkPreprint records preprint as a sibling of rep. A journal
// representative also takes it as its PreprintID unless it already has one.
func linkPreprint(rep *domain.RankedPaper, preprint *domain.Paper, id string) {
	if !rep.Preprint() && rep.PreprintID == "" {
		rep.PreprintID = id
	}
	rep.Siblings = append(rep.Siblings, id)
	donatePDF(rep, preprint)
}

// sameWork reports whether two journal records with equal normalized titles
// are one work whose DOI only one provider reported. Records that both carry
// a DOI are never merged here, nor are records with conflicting years.
func sameWork(a, b *domain.Paper) bool {
	if domain.NormalizeDOI(a.DOI) != "" && domain.NormalizeDOI(b.DOI) != "" {
		return false
	}
	if a.Year != 0 && b.Year != 0 && a.Year != b.Year {
		return false
	}
	return AuthorOverlap(a.Authors, b.Authors) >= sameAuthorsThreshold
}

// donatePDF attaches dup's PDF URL to the survivor when it has none.
func donatePDF(survivor *domain.RankedPaper, dup *domain.Paper) {
	if survivor.PDFURL == "" && dup.PDFURL != "" {
		survivor.Paper = survivor.Paper.WithPDFURL(dup.PDFURL)
	}
}
