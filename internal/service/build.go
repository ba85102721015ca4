// Package service wires the indexing and query pipelines.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docsearch/internal/domain"
	"docsearch/internal/index"
)

// DocumentLoader reads the corpus under root.
type DocumentLoader interface {
	Load(root string) ([]domain.Document, error)
}

// Publisher mirrors a finished build into an external vector store, keyed by
// build id so the store can be matched against the local pair.
type Publisher interface {
	Publish(ctx context.Context, buildID string, vectors [][]float32, records []domain.ChunkRecord) error
	Drop(ctx context.Context, buildID string) error
	Prune(ctx context.Context, keepBuildID string) error
}

type BuildConfig struct {
	Root     string
	OutDir   string
	MinWords int
}

type BuildReport struct {
	Documents int
	Chunks    int
	Dir       string
	Meta      index.Meta
}

type Indexer struct {
	loader    DocumentLoader
	chunker   domain.Chunker
	embedder  domain.Embedder
	publisher Publisher
	logger    *slog.Logger
}

// NewIndexer builds an Indexer. publisher may be nil.
func NewIndexer(loader DocumentLoader, chunker domain.Chunker, embedder domain.Embedder, publisher Publisher, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{loader: loader, chunker: chunker, embedder: embedder, publisher: publisher, logger: logger}
}

// Build loads, chunks and embeds the corpus, then writes the index pair.
// Nothing is written when no chunk reaches the minimum size.
func (s *Indexer) Build(ctx context.Context, cfg BuildConfig) (*BuildReport, error) {
	var docs []domain.Document
	err := traced(ctx, "load", func(context.Context) error {
		var err error
		docs, err = s.loader.Load(cfg.Root)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	s.logger.Info("loaded documents", "root", cfg.Root, "count", len(docs))

	var records []domain.ChunkRecord
	err = traced(ctx, "chunk", func(context.Context) error {
		records, err = s.chunk(docs, cfg.MinWords)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("build: %s: %w", cfg.Root, domain.ErrEmptyCorpus)
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	var vectors [][]float32
	err = traced(ctx, "embed", func(ctx context.Context) error {
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build: embed %d chunks: %w", len(texts), err)
	}

	flat, err := index.Build(vectors)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	meta, err := index.NewMeta(flat, s.embedder.Name())
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	// The external copy goes first: a failed publish leaves the previous
	// local pair and its collection untouched.
	if s.publisher != nil {
		err = traced(ctx, "index.publish", func(ctx context.Context) error {
			return s.publisher.Publish(ctx, meta.BuildID, vectors, records)
		})
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
	}
	err = traced(ctx, "index.save", func(context.Context) error {
		return index.SaveMeta(cfg.OutDir, flat, records, meta)
	})
	if err != nil {
		if s.publisher != nil {
			if derr := s.publisher.Drop(ctx, meta.BuildID); derr != nil {
				s.logger.Warn("drop unsaved build", "build_id", meta.BuildID, "error", derr)
			}
		}
		return nil, fmt.Errorf("build: %w", err)
	}
	s.logger.Info("index written", "dir", cfg.OutDir, "chunks", meta.Count, "dimension", meta.Dimension, "build_id", meta.BuildID)

	if s.publisher != nil {
		if err := s.publisher.Prune(ctx, meta.BuildID); err != nil {
			s.logger.Warn("prune earlier builds", "error", err)
		}
	}
	return &BuildReport{Documents: len(docs), Chunks: len(records), Dir: cfg.OutDir, Meta: meta}, nil
}

// chunk assigns ordinals in document order, dropping chunks below minWords.
func (s *Indexer) chunk(docs []domain.Document, minWords int) ([]domain.ChunkRecord, error) {
	var records []domain.ChunkRecord
	for _, d := range docs {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		kept := 0
		for _, ch := range chunks {
			if len(strings.Fields(ch.Text)) < minWords {
				continue
			}
			records = append(records, domain.ChunkRecord{
				Ordinal:   len(records),
				DocPath:   d.Path,
				Text:      ch.Text,
				StartLine: ch.StartLine,
				EndLine:   ch.EndLine,
			})
			kept++
		}
		s.logger.Debug("chunked document", "path", d.Path, "chunks", kept)
	}
	return records, nil
}
