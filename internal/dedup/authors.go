package dedup

import (
	"strings"
	"unicode"
)

// sameAuthorsThreshold is the AuthorOverlap at which two author lists are
// taken to name the same people.
const sameAuthorsThreshold = 0.8

// AuthorOverlap scores how far two author lists name the same people, from
// 0 (disjoint or either list empty) to 1 (identical). Each name of the
// shorter list is paired greedily with its most similar unpaired name in the
// longer list; the summed pair scores are divided by the size of the union.
// The score is symmetric.
func AuthorOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	short, long := normalizeAuthors(a), normalizeAuthors(b)
	if len(short) > len(long) {
		short, long = long, short
	}

	paired := make([]bool, len(long))
	pairs := 0
	total := 0.0
	for _, name := range short {
		best, bestIdx := 0.0, -1
		for j, other := range long {
			if paired[j] {
				continue
			}
			if score := nameSimilarity(name, other); score > best {
				best, bestIdx = score, j
			}
		}
		if bestIdx >= 0 {
			paired[bestIdx] = true
			pairs++
			total += best
		}
	}

	union := len(short) + len(long) - pairs
	if union == 0 {
		return 0
	}
	return total / float64(union)
}

// NormalizeName lower-cases name, turns "Last, First" into "First Last",
// drops everything but letters and single spaces, and trims the result.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	if last, first, ok := strings.Cut(name, ","); ok {
		last, first = strings.TrimSpace(last), strings.TrimSpace(first)
		name = last
		if first != "" {
			name = first + " " + last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	space := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space && sb.Len() > 0 {
				sb.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// nameSimilarity compares two normalized names by surname first:
//
//	identical given names        1.0
//	initial matches given name   0.9
//	either given name missing    0.7
//	different given names        0.3
//	different surnames           0.0
func nameSimilarity(a, b string) float64 {
	partsA, partsB := strings.Fields(a), strings.Fields(b)
	if len(partsA) == 0 || len(partsB) == 0 {
		return 0
	}
	if partsA[len(partsA)-1] != partsB[len(partsB)-1] {
		return 0
	}

	givenA, givenB := partsA[:len(partsA)-1], partsB[:len(partsB)-1]
	switch {
	case len(givenA) == 0 || len(givenB) == 0:
		return 0.7
	case strings.Join(givenA, " ") == strings.Join(givenB, " "):
		return 1
	case isInitialOf(givenA[0], givenB[0]) || isInitialOf(givenB[0], givenA[0]):
		return 0.9
	default:
		return 0.3
	}
}

// isInitialOf reports whether initial is a single letter starting name.
func isInitialOf(initial, name string) bool {
	return len(initial) == 1 && len(name) > 1 && initial[0] == name[0]
}

func normalizeAuthors(authors []string) []string {
	out := make([]string, len(authors))
	for i, a := range authors {
		out[i] = NormalizeName(a)
	}
	return out
}
