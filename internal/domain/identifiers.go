package domain

import (
	"regexp"
	"strings"
	"unicode"
)

var doiResolverPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://www.doi.org/",
	"http://www.doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"www.doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

// NormalizeDOI lower-cases a DOI, trims it and strips resolver URL and
// "doi:" prefixes, including stacked ones such as "https://doi.org/doi:".
// It returns "" for input that does not look like a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range doiResolverPrefixes {
			if strings.HasPrefix(doi, prefix) {
				doi = strings.TrimSpace(strings.TrimPrefix(doi, prefix))
				stripped = true
				break
			}
		}
	}
	if !strings.HasPrefix(doi, "10.") {
		return ""
	}
	return doi
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// NormalizeTitle lower-cases a title, replaces punctuation with spaces and
// collapses whitespace so that cosmetic differences between providers
// ("Deep Learning: A Review." vs "deep learning - a review") compare equal.
func NormalizeTitle(title string) string {
	title = strings.ToLower(title)
	title = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, title)
	title = nonAlnum.ReplaceAllString(title, " ")
	return strings.Join(strings.Fields(title), " ")
}
