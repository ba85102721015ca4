package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsearch/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFiltersExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "# A\nbody\n")
	writeFile(t, filepath.Join(root, "sub", "b.TXT"), "plain")
	writeFile(t, filepath.Join(root, "sub", "c.go"), "package c")
	writeFile(t, filepath.Join(root, "d.json"), `{"k": 1}`)

	docs, err := New(nil, nil).Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if strings.HasSuffix(d.Path, ".go") {
			t.Errorf("unexpected file %s", d.Path)
		}
	}
}

func TestLoadDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"z.md", "a.md", "m/n.md", "b.md"} {
		writeFile(t, filepath.Join(root, name), name)
	}
	l := New([]string{"md"}, nil)
	first, err := l.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.md", "b.md", "m/n.md", "z.md"}
	for i := range want {
		rel, _ := filepath.Rel(root, first[i].Path)
		if filepath.ToSlash(rel) != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rel)
		}
		if first[i].Path != second[i].Path {
			t.Errorf("order changed between runs at %d", i)
		}
	}
}

func TestLoadDropsMalformedBytes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad.txt"), "ok\xff\xfetext\n")
	docs, err := New(nil, nil).Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Text != "oktext\n" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestLoadMissingRoot(t *testing.T) {
	_, err := New(nil, nil).Load(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewDocumentLines(t *testing.T) {
	d := NewDocument("x.md", "one\ntwo\nthree")
	if len(d.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(d.Lines))
	}
	if strings.Join(d.Lines, "") != d.Text {
		t.Error("joined lines do not reproduce text")
	}
	if d.Lines[0] != "one\n" {
		t.Errorf("expected line to keep newline, got %q", d.Lines[0])
	}
}
