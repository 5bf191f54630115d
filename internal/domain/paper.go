package domain

// Paper is a provider-normalized paper record. Adapters fill every text
// field with "" and every numeric field with 0 when the provider omits them.
// A Paper is treated as immutable once produced; use WithPDFURL to attach a
// better PDF link later in the pipeline.
type Paper struct {
	CanonicalID   string     `json:"canonical_id"`
	Source        SourceType `json:"source"`
	SourceID      string     `json:"source_id"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Authors       []string   `json:"authors"`
	Year          int        `json:"year"`
	Venue         string     `json:"venue"`
	DOI           string     `json:"doi"`
	URL           string     `json:"url"`
	PDFURL        string     `json:"pdf_url"`
	CitationCount int        `json:"citation_count"`
	OpenAccess    bool       `json:"open_access"`
	IsPreprint    bool       `json:"is_preprint"`
}

// Preprint reports whether the record describes a preprint, either because
// the provider flagged it or because the provider only hosts preprints.
func (p *Paper) Preprint() bool {
	return p.IsPreprint || p.Source.IsPreprintServer()
}

// WithPDFURL returns a copy of the paper carrying the given PDF URL.
func (p *Paper) WithPDFURL(url string) *Paper {
	cp := p.Clone()
	cp.PDFURL = url
	return cp
}

// Clone returns a copy that shares no mutable state with p.
func (p *Paper) Clone() *Paper {
	cp := *p
	if p.Authors != nil {
		cp.Authors = append([]string(nil), p.Authors...)
	}
	return &cp
}

// DedupKey returns the key used to serialize ingestion of the same physical
// paper: the lower-cased DOI when present, otherwise the normalized title.
func (p *Paper) DedupKey() string {
	if doi := NormalizeDOI(p.DOI); doi != "" {
		return "doi:" + doi
	}
	return "title:" + NormalizeTitle(p.Title)
}

// Scores holds the ranking signals for a candidate.
type Scores struct {
	Relevance float64 `json:"relevance"`
	Authority float64 `json:"authority"`
	Recency   float64 `json:"recency"`
	Combined  float64 `json:"combined"`
}

// RankedPaper is a paper with its ranking scores and cross-references to
// preprint or journal versions of the same work.
type RankedPaper struct {
	*Paper
	Scores     Scores   `json:"scores"`
	Siblings   []string `json:"siblings,omitempty"`
	PreprintID string   `json:"preprint_id,omitempty"`
}

// Reference is a work cited by a paper.
type Reference struct {
	Title    string   `json:"title"`
	DOI      string   `json:"doi,omitempty"`
	Year     int      `json:"year,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	SourceID string   `json:"source_id,omitempty"`
}
