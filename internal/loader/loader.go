package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docsearch/internal/domain"
)

// DefaultExtensions are the file types indexed when none are configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".json"}

// Loader reads eligible text files below a root directory.
type Loader struct {
	extensions map[string]struct{}
	logger     *slog.Logger
}

// New creates a loader for the given extensions (matched case-insensitively).
func New(extensions []string, logger *slog.Logger) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	return &Loader{extensions: exts, logger: logger}
}

// Load walks root in lexical order and returns every readable matching file.
// Files that cannot be read are skipped; malformed UTF-8 is dropped.
func (l *Loader) Load(root string) ([]domain.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("loader: %w: %v", domain.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loader: %w: %s is not a directory", domain.ErrInvalidConfig, root)
	}

	var docs []domain.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the walk goes on.
			l.logger.Debug("loader: skip", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !l.matches(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Debug("loader: skip unreadable file", "path", path, "error", err)
			return nil
		}
		docs = append(docs, NewDocument(path, string(data)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", root, err)
	}
	return docs, nil
}

func (l *Loader) matches(path string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// NewDocument builds a Document from raw file content. Lines keep their
// trailing newline so that joining them reproduces the text.
func NewDocument(path, content string) domain.Document {
	text := strings.ToValidUTF8(content, "")
	lines := strings.SplitAfter(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return domain.Document{Path: path, Lines: lines, Text: text}
}
