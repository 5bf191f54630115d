package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkKind distinguishes metadata chunks from extracted full text.
type ChunkKind string

const (
	ChunkKindAbstract ChunkKind = "abstract"
	ChunkKindFullText ChunkKind = "full_text"
)

// Chunk is one retrieval unit of a paper.
type Chunk struct {
	Index int       `json:"index"`
	Kind  ChunkKind `json:"kind"`
	Text  string    `json:"text"`
}

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"al": true, "approx": true, "cf": true, "dr": true, "e.g": true,
	"eq": true, "eqs": true, "et": true, "etc": true, "fig": true,
	"figs": true, "i.e": true, "no": true, "ref": true, "refs": true,
	"sec": true, "vol": true, "vs": true, "ca": true, "resp": true,
}

// Chunker packs whole sentences into chunks of at most MaxChars, carrying
// the last Overlap sentences into the next chunk.
type Chunker struct {
	maxChars int
	overlap  int
}

// NewChunker creates a Chunker. Non-positive maxChars defaults to 1200.
func NewChunker(maxChars, overlap int) *Chunker {
	if maxChars <= 0 {
		maxChars = 1200
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{maxChars: maxChars, overlap: overlap}
}

// Split returns the chunk texts for text.
func (c *Chunker) Split(text string) []string {
	var (
		chunks []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
		}
	}

	for _, sentence := range SplitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		if n > c.maxChars {
			flush()
			cur, curLen = nil, 0
			chunks = append(chunks, splitWords(sentence, c.maxChars)...)
			continue
		}
		if len(cur) > 0 && curLen+1+n > c.maxChars {
			flush()
			cur, curLen = c.carry(cur, n)
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, sentence)
		curLen += n
	}
	flush()
	return chunks
}

// carry returns the overlap sentences that still leave room for a sentence
// of length next.
func (c *Chunker) carry(prev []string, next int) ([]string, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	start := max(len(prev)-c.overlap, 0)
	for ; start < len(prev); start++ {
		kept := prev[start:]
		size := len(kept) - 1
		for _, s := range kept {
			size += utf8.RuneCountInString(s)
		}
		if size+1+next <= c.maxChars {
			return append([]string(nil), kept...), size
		}
	}
	return nil, 0
}

// SplitSentences breaks text into sentences. Blank lines always end a
// sentence; otherwise a word ending in '.', '!' or '?' ends one when the
// next word starts with an upper-case letter, digit or opening bracket and
// the word is not a known abbreviation or an initial.
func SplitSentences(text string) []string {
	var sentences []string
	for _, para := range splitParagraphs(text) {
		words := strings.Fields(para)
		start := 0
		for i, w := range words {
			last := i == len(words)-1
			if last || (endsSentence(w) && startsSentence(words[i+1])) {
				sentences = append(sentences, strings.Join(words[start:i+1], " "))
				start = i + 1
			}
		}
	}
	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

func endsSentence(word string) bool {
	w := strings.TrimRight(word, `"')]”’`)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	stem := strings.ToLower(strings.TrimLeft(strings.TrimSuffix(w, "."), `"'([“‘`))
	if abbreviations[stem] {
		return false
	}
	if r, size := utf8.DecodeRuneInString(stem); size == len(stem) && unicode.IsLetter(r) {
		return false
	}
	return true
}

func startsSentence(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r) || unicode.IsDigit(r) || strings.ContainsRune(`"'([“‘`, r)
}

func splitWords(sentence string, maxChars int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, w := range strings.Fields(sentence) {
		for utf8.RuneCountInString(w) > maxChars {
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
			runes := []rune(w)
			out = append(out, string(runes[:maxChars]))
			w = string(runes[maxChars:])
		}
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+1+utf8.RuneCountInString(w) > maxChars {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// BuildChunks chunks a paper's title and abstract, then any full text.
// Indexes run across both kinds.
func (c *Chunker) BuildChunks(title, abstract, fullText string) []Chunk {
	var chunks []Chunk
	add := func(kind ChunkKind, texts []string) {
		for _, t := range texts {
			chunks = append(chunks, Chunk{Index: len(chunks), Kind: kind, Text: t})
		}
	}

	head := strings.TrimSpace(title)
	if a := strings.TrimSpace(abstract); a != "" {
		if head != "" {
			head += "\n\n"
		}
		head += a
	}
	add(ChunkKindAbstract, c.Split(head))
	add(ChunkKindFullText, c.Split(fullText))
	return chunks
}
