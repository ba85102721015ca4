package chunker

import (
	"iter"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"docsearch/internal/domain"
)

const (
	DefaultMaxWords = 350
	DefaultMinWords = 20
)

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s`)

// HeadingChunker splits text into heading-delimited sections and windows
// each section by word count.
type HeadingChunker struct {
	maxWords     int
	minWords     int
	overlapWords int
}

func NewHeadingChunker(maxWords, minWords, overlapWords int) *HeadingChunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	if overlapWords < 0 || overlapWords >= maxWords {
		overlapWords = 0
	}
	return &HeadingChunker{maxWords: maxWords, minWords: minWords, overlapWords: overlapWords}
}

// MinWords is the smallest word count a chunk may have.
func (c *HeadingChunker) MinWords() int { return c.minWords }

// Chunk collects all chunks of a document.
func (c *HeadingChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return slices.Collect(c.Chunks(document.Lines)), nil
}

// Chunks lazily yields the chunks of a line sequence in document order.
func (c *HeadingChunker) Chunks(lines []string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		text := strings.Join(lines, "")
		lx := newLineIndex(text)
		step := c.maxWords - c.overlapWords
		for _, sec := range sections(text) {
			words := wordSpans(text, sec.start, sec.end)
			if len(words) < c.minWords {
				continue
			}
			for i := 0; i < len(words); i += step {
				end := min(i+c.maxWords, len(words))
				win := words[i:end]
				if len(win) < c.minWords {
					break
				}
				chunk := domain.Chunk{
					Text:      joinWords(text, win),
					StartLine: lx.line(win[0].start),
					EndLine:   lx.line(win[len(win)-1].end - 1),
				}
				if !yield(chunk) {
					return
				}
				if end == len(words) {
					break
				}
			}
		}
	}
}

// span is a half-open byte range into the joined text.
type span struct{ start, end int }

// sections returns the byte ranges of heading-delimited sections. A heading
// line opens its section; text before the first heading is its own section.
func sections(text string) []span {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []span{{0, len(text)}}
	}
	out := make([]span, 0, len(locs)+1)
	if locs[0][0] > 0 {
		out = append(out, span{0, locs[0][0]})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, span{loc[0], end})
	}
	return out
}

// wordSpans splits text[from:to] on Unicode whitespace, keeping offsets.
func wordSpans(text string, from, to int) []span {
	var out []span
	start := -1
	for i, r := range text[from:to] {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{from + start, from + i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{from + start, to})
	}
	return out
}

func joinWords(text string, words []span) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text[w.start:w.end])
	}
	return b.String()
}

// lineIndex maps byte offsets to 1-indexed line numbers.
type lineIndex struct{ newlines []int }

func newLineIndex(text string) lineIndex {
	var nl []int
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			nl = append(nl, i)
		}
	}
	return lineIndex{newlines: nl}
}

func (x lineIndex) line(offset int) int {
	return sort.SearchInts(x.newlines, offset) + 1
}
