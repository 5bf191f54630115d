package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
)

func TestCanonicalID(t *testing.T) {
	t.Run("same DOI in any form agrees", func(t *testing.T) {
		a := &domain.Paper{DOI: "10.1038/Nature12373", Title: "A", Source: domain.SourceTypeOpenAlex}
		b := &domain.Paper{DOI: "https://doi.org/10.1038/nature12373", Title: "B", Source: domain.SourceTypePubMed, Year: 2013}
		c := &domain.Paper{DOI: " doi:10.1038/NATURE12373 ", Source: domain.SourceTypeScopus}

		assert.Equal(t, CanonicalID(a), CanonicalID(b))
		assert.Equal(t, CanonicalID(a), CanonicalID(c))
		assert.Len(t, CanonicalID(a), canonicalIDLength)
	})

	t.Run("without DOI is deterministic in title, year and source", func(t *testing.T) {
		p := &domain.Paper{Title: "Deep Learning: A Review.", Year: 2015, Source: domain.SourceTypeArXiv}
		same := &domain.Paper{Title: "deep learning - a review", Year: 2015, Source: domain.SourceTypeArXiv}

		assert.Equal(t, CanonicalID(p), CanonicalID(p))
		assert.Equal(t, CanonicalID(p), CanonicalID(same))
		assert.NotEqual(t, CanonicalID(p), CanonicalID(&domain.Paper{Title: p.Title, Year: 2016, Source: p.Source}))
		assert.NotEqual(t, CanonicalID(p), CanonicalID(&domain.Paper{Title: p.Title, Year: 2015, Source: domain.SourceTypeBioRxiv}))
	})

	t.Run("DOI and title identities never collide", func(t *testing.T) {
		withDOI := &domain.Paper{DOI: "10.1/x", Title: "T"}
		without := &domain.Paper{Title: "T"}
		assert.NotEqual(t, CanonicalID(withDOI), CanonicalID(without))
	})

	t.Run("invalid DOI falls back to title", func(t *testing.T) {
		p := &domain.Paper{DOI: "not-a-doi", Title: "T", Year: 2020, Source: domain.SourceTypeOpenAlex}
		assert.Equal(t, CanonicalID(&domain.Paper{Title: "T", Year: 2020, Source: domain.SourceTypeOpenAlex}), CanonicalID(p))
	})
}

func TestCanonicalize_DoesNotMutateInput(t *testing.T) {
	p := &domain.Paper{DOI: "10.1/x", Title: "T", Authors: []string{"A"}}
	cp := Canonicalize(p)
	assert.Empty(t, p.CanonicalID)
	assert.NotEmpty(t, cp.CanonicalID)
	cp.Authors[0] = "B"
	assert.Equal(t, "A", p.Authors[0])
}

func TestDeduplicate_SameDOIKeepsHighestCited(t *testing.T) {
	papers := []*domain.Paper{
		{DOI: "10.1000/ml", Title: "Machine Learning", CitationCount: 10, Source: domain.SourceTypeOpenAlex},
		{DOI: "https://doi.org/10.1000/ML", Title: "Machine learning", CitationCount: 50, Source: domain.SourceTypeSemanticScholar},
		{DOI: "10.1000/ml", Title: "Machine learning.", CitationCount: 5, Source: domain.SourceTypePubMed},
	}

	out, stats := DeduplicateStats(papers)
	require.Len(t, out, 1)
	assert.Equal(t, 50, out[0].CitationCount)
	assert.Equal(t, domain.SourceTypeSemanticScholar, out[0].Source)
	assert.Equal(t, CanonicalID(papers[0]), out[0].CanonicalID)
	assert.Equal(t, Stats{Input: 3, Output: 1, Duplicates: 2}, stats)
}

func TestDeduplicate_OrderAndTieBreak(t *testing.T) {
	papers := []*domain.Paper{
		{Title: "low", CitationCount: 1, Source: domain.SourceTypeOpenAlex},
		{Title: "tie scopus", CitationCount: 7, Source: domain.SourceTypeScopus},
		{Title: "tie openalex", CitationCount: 7, Source: domain.SourceTypeOpenAlex},
		{Title: "high", CitationCount: 99, Source: domain.SourceTypePubMed},
	}

	out := Deduplicate(papers)
	titles := make([]string, len(out))
	for i, p := range out {
		titles[i] = p.Title
	}
	assert.Equal(t, []string{"high", "tie openalex", "tie scopus", "low"}, titles)
}

func TestDeduplicate_TieOnDuplicatePrefersPriority(t *testing.T) {
	papers := []*domain.Paper{
		{DOI: "10.1/x", Title: "X", CitationCount: 3, Source: domain.SourceTypeScopus, Venue: "from scopus"},
		{DOI: "10.1/x", Title: "X", CitationCount: 3, Source: domain.SourceTypeOpenAlex, Venue: "from openalex"},
	}
	out := Deduplicate(papers)
	require.Len(t, out, 1)
	assert.Equal(t, "from openalex", out[0].Venue)
}

func TestDeduplicate_JournalReplacesPreprint(t *testing.T) {
	preprint := &domain.Paper{
		Title: "Attention Is All You Need", Year: 2017, Source: domain.SourceTypeArXiv,
		CitationCount: 900, PDFURL: "https://arxiv.org/pdf/1706.03762",
	}
	journal := &domain.Paper{
		DOI: "10.5555/3295222", Title: "Attention is all you need.", Year: 2017,
		Source: domain.SourceTypeSemanticScholar, CitationCount: 100,
	}

	out, stats := DeduplicateStats([]*domain.Paper{journal, preprint})
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, domain.SourceTypeSemanticScholar, got.Source, "journal version is primary")
	assert.Equal(t, CanonicalID(preprint), got.PreprintID)
	assert.Equal(t, []string{CanonicalID(preprint)}, got.Siblings)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762", got.PDFURL, "preprint PDF carried over")
	assert.Equal(t, 1, stats.SiblingLinks)
	assert.Empty(t, journal.PDFURL, "input untouched")
}

func TestDeduplicate_PreprintLinkedToEarlierJournal(t *testing.T) {
	journal := &domain.Paper{DOI: "10.1/j", Title: "Graph Networks", Source: domain.SourceTypeOpenAlex, CitationCount: 40}
	preprint := &domain.Paper{Title: "Graph networks", Source: domain.SourceTypeBioRxiv, IsPreprint: true, CitationCount: 2}

	out := Deduplicate([]*domain.Paper{preprint, journal})
	require.Len(t, out, 1)
	assert.Equal(t, "10.1/j", out[0].DOI)
	assert.Equal(t, CanonicalID(preprint), out[0].PreprintID)
	assert.Contains(t, out[0].Siblings, CanonicalID(preprint))
}

func TestDeduplicate_PreprintCarryingJournalDOIIsLinked(t *testing.T) {
	journal := &domain.Paper{
		DOI: "10.5555/3295222", Title: "Attention Is All You Need", Year: 2017,
		Source: domain.SourceTypeOpenAlex, SourceID: "W2963403868", CitationCount: 900,
	}
	preprint := &domain.Paper{
		DOI: "10.5555/3295222", Title: "Attention Is All You Need", Year: 2017,
		Source: domain.SourceTypeArXiv, SourceID: "1706.03762", IsPreprint: true,
		PDFURL: "https://arxiv.org/pdf/1706.03762",
	}

	out, stats := DeduplicateStats([]*domain.Paper{preprint, journal})
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, domain.SourceTypeOpenAlex, got.Source)
	assert.Equal(t, VersionID(preprint), got.PreprintID)
	assert.NotEqual(t, got.CanonicalID, got.PreprintID)
	assert.Equal(t, []string{VersionID(preprint)}, got.Siblings)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762", got.PDFURL)
	assert.Equal(t, Stats{Input: 2, Output: 1, SiblingLinks: 1}, stats)
}

func TestDeduplicate_JournalCarryingPreprintDOIReplacesIt(t *testing.T) {
	preprint := &domain.Paper{
		DOI: "10.1/shared", Title: "Graph Networks", Source: domain.SourceTypeBioRxiv,
		SourceID: "2020.01.01.1", CitationCount: 50, PDFURL: "https://biorxiv.org/x.pdf",
	}
	journal := &domain.Paper{
		DOI: "10.1/shared", Title: "Graph networks", Source: domain.SourceTypePubMed,
		SourceID: "31234567", CitationCount: 10,
	}

	out, stats := DeduplicateStats([]*domain.Paper{journal, preprint})
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, domain.SourceTypePubMed, got.Source, "journal version is primary")
	assert.Equal(t, VersionID(preprint), got.PreprintID)
	assert.Equal(t, []string{VersionID(preprint)}, got.Siblings)
	assert.Equal(t, "https://biorxiv.org/x.pdf", got.PDFURL)
	assert.Equal(t, 1, stats.SiblingLinks)
	assert.Zero(t, stats.Duplicates)
}

func TestVersionID(t *testing.T) {
	a := &domain.Paper{DOI: "10.1/x", Title: "T", Source: domain.SourceTypeArXiv, SourceID: "1"}
	b := &domain.Paper{DOI: "10.1/x", Title: "T", Source: domain.SourceTypeOpenAlex, SourceID: "1"}
	assert.NotEqual(t, VersionID(a), VersionID(b))
	assert.NotEqual(t, CanonicalID(a), VersionID(a))

	noID := &domain.Paper{DOI: "10.1/x", Title: "T", Year: 2020, Source: domain.SourceTypeArXiv}
	assert.Equal(t, CanonicalID(&domain.Paper{Title: "T", Year: 2020, Source: domain.SourceTypeArXiv}), VersionID(noID))
}

func TestDeduplicate_PreprintOnlyIsKept(t *testing.T) {
	preprint := &domain.Paper{Title: "Only On arXiv", Source: domain.SourceTypeArXiv}
	out := Deduplicate([]*domain.Paper{preprint})
	require.Len(t, out, 1)
	assert.Equal(t, domain.SourceTypeArXiv, out[0].Source)
	assert.Empty(t, out[0].PreprintID)
	assert.Empty(t, out[0].Siblings)
}

func TestDeduplicate_PreprintsAcrossServersCollapse(t *testing.T) {
	arxiv := &domain.Paper{Title: "Protein Design", Source: domain.SourceTypeArXiv, CitationCount: 5}
	biorxiv := &domain.Paper{DOI: "10.1101/2020.01.01", Title: "Protein design", Source: domain.SourceTypeBioRxiv, CitationCount: 3}
	journal := &domain.Paper{DOI: "10.1126/science.1", Title: "Protein Design", Source: domain.SourceTypeOpenAlex, CitationCount: 1}

	out := Deduplicate([]*domain.Paper{journal, biorxiv, arxiv})
	require.Len(t, out, 1, "one representative per title")
	assert.Equal(t, "10.1126/science.1", out[0].DOI)
	assert.Equal(t, CanonicalID(arxiv), out[0].PreprintID)
	assert.ElementsMatch(t, []string{CanonicalID(arxiv), CanonicalID(biorxiv)}, out[0].Siblings)
}

func TestDeduplicate_DistinctJournalsWithSameTitleAreKept(t *testing.T) {
	a := &domain.Paper{DOI: "10.1/a", Title: "Editorial", Source: domain.SourceTypeOpenAlex}
	b := &domain.Paper{DOI: "10.1/b", Title: "Editorial", Source: domain.SourceTypeOpenAlex}
	assert.Len(t, Deduplicate([]*domain.Paper{a, b}), 2)
}

func TestDeduplicate_DuplicateDonatesPDF(t *testing.T) {
	rich := &domain.Paper{DOI: "10.1/x", Title: "X", CitationCount: 10, Source: domain.SourceTypeOpenAlex}
	withPDF := &domain.Paper{DOI: "10.1/x", Title: "X", CitationCount: 1, Source: domain.SourceTypePubMed, PDFURL: "https://pmc/x.pdf"}

	out := Deduplicate([]*domain.Paper{withPDF, rich})
	require.Len(t, out, 1)
	assert.Equal(t, 10, out[0].CitationCount)
	assert.Equal(t, "https://pmc/x.pdf", out[0].PDFURL)
}

func TestDeduplicate_Invariants(t *testing.T) {
	papers := []*domain.Paper{
		{DOI: "10.1/a", Title: "A", CitationCount: 3, Source: domain.SourceTypeOpenAlex},
		{DOI: "10.1/A", Title: "A", CitationCount: 4, Source: domain.SourceTypeScopus},
		{Title: "B", Year: 2020, Source: domain.SourceTypeArXiv},
		{Title: "B", Year: 2020, Source: domain.SourceTypeArXiv},
		{DOI: "10.1/b", Title: "B", Source: domain.SourceTypePubMed},
		nil,
		{Title: "", Source: domain.SourceTypeOpenAlex},
	}

	out, stats := DeduplicateStats(papers)
	assert.LessOrEqual(t, len(out), len(papers))
	assert.Equal(t, len(out), stats.Output)

	ids := make(map[string]bool)
	for _, p := range out {
		assert.False(t, ids[p.CanonicalID], "duplicate canonical id %s", p.CanonicalID)
		ids[p.CanonicalID] = true
	}
}

func TestDeduplicate_Empty(t *testing.T) {
	out := Deduplicate(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDeduplicate_MissingDOIFoldsIntoMatchingJournal(t *testing.T) {
	withDOI := &domain.Paper{DOI: "10.1/gnn", Title: "Graph Networks", Year: 2021, Authors: []string{"Ada Lovelace", "Alan Turing"}, Source: domain.SourceTypeOpenAlex, CitationCount: 50}
	noDOI := &domain.Paper{Title: "Graph networks.", Year: 2021, Authors: []string{"Lovelace, Ada", "A. Turing"}, Source: domain.SourceTypeScopus, CitationCount: 10, PDFURL: "https://example.org/gnn.pdf"}

	out, stats := DeduplicateStats([]*domain.Paper{noDOI, withDOI})
	require.Len(t, out, 1)
	assert.Equal(t, "10.1/gnn", out[0].DOI)
	assert.Equal(t, "https://example.org/gnn.pdf", out[0].PDFURL)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestDeduplicate_MissingDOIKeptWhenAuthorsOrYearDiffer(t *testing.T) {
	withDOI := &domain.Paper{DOI: "10.1/gnn", Title: "Graph Networks", Year: 2021, Authors: []string{"Ada Lovelace"}, Source: domain.SourceTypeOpenAlex, CitationCount: 5}
	otherAuthors := &domain.Paper{Title: "Graph Networks", Year: 2021, Authors: []string{"Grace Hopper"}, Source: domain.SourceTypeScopus}
	otherYear := &domain.Paper{Title: "Graph Networks", Year: 2015, Authors: []string{"Ada Lovelace"}, Source: domain.SourceTypePubMed}

	assert.Len(t, Deduplicate([]*domain.Paper{withDOI, otherAuthors, otherYear}), 3)
}
