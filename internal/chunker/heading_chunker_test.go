package chunker

import (
	"fmt"
	"strings"
	"testing"

	"docsearch/internal/domain"
	"docsearch/internal/loader"
)

func words(prefix string, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func chunkText(t *testing.T, c *HeadingChunker, text string) []domain.Chunk {
	t.Helper()
	chunks, err := c.Chunk(loader.NewDocument("doc.md", text))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	return chunks
}

func TestMinWordsBoundary(t *testing.T) {
	c := NewHeadingChunker(350, 20, 0)
	tests := []struct {
		name  string
		words int
		want  int
	}{
		{"one below minimum", 19, 0},
		{"exactly minimum", 20, 1},
		{"empty", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkText(t, c, words("w", tt.words)+"\n")
			if len(got) != tt.want {
				t.Fatalf("expected %d chunks, got %d", tt.want, len(got))
			}
			for _, ch := range got {
				if n := len(strings.Fields(ch.Text)); n < 20 {
					t.Errorf("chunk has %d words, below minimum", n)
				}
			}
		})
	}
}

func TestNoHeadingsSingleSection(t *testing.T) {
	c := NewHeadingChunker(350, 5, 0)
	text := "line one has words\nline two has more words\nline three ends here\n"
	got := chunkText(t, c, text)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].StartLine != 1 || got[0].EndLine != 3 {
		t.Errorf("expected lines 1-3, got %d-%d", got[0].StartLine, got[0].EndLine)
	}
	if got[0].Text != strings.Join(strings.Fields(text), " ") {
		t.Errorf("unexpected text %q", got[0].Text)
	}
}

func TestHeadingBelongsToItsSection(t *testing.T) {
	c := NewHeadingChunker(350, 3, 0)
	text := "preamble text before any heading\n# Intro\nintro body words here\n## Setup\nsetup body words here\n"
	got := chunkText(t, c, text)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if !strings.HasPrefix(got[1].Text, "# Intro") {
		t.Errorf("expected heading at start of section, got %q", got[1].Text)
	}
	if !strings.HasPrefix(got[2].Text, "## Setup") {
		t.Errorf("expected heading at start of section, got %q", got[2].Text)
	}
	if got[1].StartLine != 2 || got[1].EndLine != 3 {
		t.Errorf("intro lines: got %d-%d", got[1].StartLine, got[1].EndLine)
	}
	if got[2].StartLine != 4 || got[2].EndLine != 5 {
		t.Errorf("setup lines: got %d-%d", got[2].StartLine, got[2].EndLine)
	}
}

func TestNotAHeading(t *testing.T) {
	c := NewHeadingChunker(350, 1, 0)
	text := "#hashtag is not a heading\n####### seven is not either\n"
	if got := chunkText(t, c, text); len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
}

func TestHeadingSplitReconstructsWindows(t *testing.T) {
	const maxWords = 10
	c := NewHeadingChunker(maxWords, 3, 0)
	secA := "# A " + words("a", 24) // 26 words: windows of 10, 10, 6
	secB := "# B " + words("b", 31) // 33 words: windows of 10, 10, 10, 3
	text := secA + "\n" + secB + "\n"

	got := chunkText(t, c, text)
	if len(got) != 7 {
		t.Fatalf("expected 7 chunks, got %d", len(got))
	}
	var groupA, groupB []string
	for _, ch := range got[:3] {
		groupA = append(groupA, ch.Text)
	}
	for _, ch := range got[3:] {
		groupB = append(groupB, ch.Text)
	}
	if strings.Join(groupA, " ") != strings.Join(strings.Fields(secA), " ") {
		t.Errorf("section A not reconstructed:\n%s", strings.Join(groupA, " "))
	}
	if strings.Join(groupB, " ") != strings.Join(strings.Fields(secB), " ") {
		t.Errorf("section B not reconstructed:\n%s", strings.Join(groupB, " "))
	}
	for _, ch := range got {
		if n := len(strings.Fields(ch.Text)); n > maxWords {
			t.Errorf("window has %d words, above max", n)
		}
	}
	if got[3].StartLine != 2 {
		t.Errorf("section B should start on line 2, got %d", got[3].StartLine)
	}
}

func TestTrailingWindowBelowMinimumDropped(t *testing.T) {
	c := NewHeadingChunker(10, 5, 0)
	got := chunkText(t, c, words("w", 23))
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
}

func TestLineRangesMonotonic(t *testing.T) {
	c := NewHeadingChunker(7, 2, 0)
	var b strings.Builder
	for i := 0; i < 12; i++ {
		if i%4 == 0 {
			fmt.Fprintf(&b, "## Part %d\n", i)
		}
		fmt.Fprintf(&b, "%s\n", words(fmt.Sprintf("l%d_", i), 3))
	}
	got := chunkText(t, c, b.String())
	if len(got) == 0 {
		t.Fatal("expected chunks")
	}
	prev := 0
	for _, ch := range got {
		if ch.StartLine < 1 || ch.EndLine < ch.StartLine {
			t.Fatalf("invalid range %d-%d", ch.StartLine, ch.EndLine)
		}
		if ch.StartLine < prev {
			t.Fatalf("start line %d went backwards from %d", ch.StartLine, prev)
		}
		prev = ch.StartLine
	}
}

func TestExactLineAttribution(t *testing.T) {
	c := NewHeadingChunker(4, 1, 0)
	text := "a b\nc d\ne f\ng h\n"
	got := chunkText(t, c, text)
	want := [][2]int{{1, 2}, {3, 4}}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].StartLine != w[0] || got[i].EndLine != w[1] {
			t.Errorf("chunk %d: expected %d-%d, got %d-%d", i, w[0], w[1], got[i].StartLine, got[i].EndLine)
		}
	}
}

func TestOverlapWindows(t *testing.T) {
	c := NewHeadingChunker(10, 1, 5)
	got := chunkText(t, c, words("w", 20))
	if len(got) != 3 {
		t.Fatalf("expected 3 overlapping chunks, got %d", len(got))
	}
	if !strings.HasPrefix(got[1].Text, "w5 ") {
		t.Errorf("expected second window to start at w5, got %q", got[1].Text)
	}
}

func TestChunksStopsEarly(t *testing.T) {
	c := NewHeadingChunker(5, 1, 0)
	doc := loader.NewDocument("doc.md", words("w", 50))
	n := 0
	for range c.Chunks(doc.Lines) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected iteration to stop at 2, got %d", n)
	}
}
