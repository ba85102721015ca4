package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docsearch/internal/chunker"
	"docsearch/internal/config"
	"docsearch/internal/domain"
	"docsearch/internal/embedding/hashing"
	"docsearch/internal/embedding/ollama"
	"docsearch/internal/embedding/openai"
	"docsearch/internal/fusion"
	"docsearch/internal/index"
	"docsearch/internal/index/qdrant"
	"docsearch/internal/loader"
	"docsearch/internal/output"
	"docsearch/internal/rerank"
	"docsearch/internal/retriever"
	"docsearch/internal/service"
	"docsearch/internal/tui"
)

const (
	exitConfig      = 1
	exitEmptyCorpus = 2
	exitFatal       = 3
)

const usage = `Usage: docsearch <command> [flags]

Commands:
  build   index the documents under --root
  query   search the index with --query
  tui     interactive search session
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitConfig)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(ctx, os.Args[2:])
	case "query":
		err = runQuery(ctx, os.Args[2:])
	case "tui":
		err = runTUI(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(exitConfig)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "docsearch:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyCorpus):
		return exitEmptyCorpus
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrIndexNotFound),
		errors.Is(err, domain.ErrIndexMismatch):
		return exitConfig
	}
	return exitFatal
}

func loadConfig(path string) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file (optional; uses ~/.config/docsearch/config.yaml if not provided)")
	root := fs.String("root", "", "Directory of documents to index")
	out := fs.String("out", "", "Directory to write the index pair to")
	maxWords := fs.Int("max-words", 0, "Maximum words per chunk")
	minWords := fs.Int("min-words", 0, "Minimum words per chunk")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *root != "" {
		cfg.Loader.Root = *root
	}
	if *out != "" {
		cfg.Index.Dir = *out
	}
	if *maxWords > 0 {
		cfg.Chunker.MaxWords = *maxWords
	}
	if *minWords > 0 {
		cfg.Chunker.MinWords = *minWords
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	emb, err := newEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return err
	}
	var pub service.Publisher
	if cfg.Index.Backend == "qdrant" {
		store, err := qdrant.New(cfg.Index.Qdrant.Addr, cfg.Index.Qdrant.Collection)
		if err != nil {
			return err
		}
		defer store.Close()
		pub = store
	}

	ch := chunker.NewHeadingChunker(cfg.Chunker.MaxWords, cfg.Chunker.MinWords, cfg.Chunker.OverlapWords)
	ix := service.NewIndexer(loader.New(cfg.Loader.Extensions, logger), ch, emb, pub, logger)
	report, err := ix.Build(ctx, service.BuildConfig{
		Root:     cfg.Loader.Root,
		OutDir:   cfg.Index.Dir,
		MinWords: ch.MinWords(),
	})
	if err != nil {
		return err
	}
	output.Build(os.Stdout, report)
	return nil
}

// session is a loaded index ready to answer queries.
type session struct {
	searcher *service.Searcher
	summary  string
	close    func() error
}

func openSession(ctx context.Context, cfg *config.AppConfig, noRerank bool, logger *slog.Logger) (*session, error) {
	stored, err := index.Load(cfg.Index.Dir)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w; run `docsearch build` first", err)
		}
		return nil, err
	}
	emb, err := newEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	if stored.Meta.Embedder != "" && stored.Meta.Embedder != emb.Name() {
		logger.Warn("index was built with a different embedder", "index", stored.Meta.Embedder, "configured", emb.Name())
	}

	var backend domain.Searcher = stored.Flat
	closeFn := func() error { return nil }
	if cfg.Index.Backend == "qdrant" {
		store, err := qdrant.New(cfg.Index.Qdrant.Addr, cfg.Index.Qdrant.Collection)
		if err != nil {
			return nil, err
		}
		if err := store.Open(ctx, stored.Meta.BuildID, stored.Meta.Count); err != nil {
			store.Close()
			return nil, err
		}
		backend = store
		closeFn = store.Close
	}

	var strategy fusion.Strategy = fusion.IndexScore{}
	if cfg.Reranker.Type == "tei" && !noRerank {
		strategy = fusion.Softmax{
			Reranker: rerank.NewClient(rerank.Config{
				URL:        cfg.Reranker.TEI.URL,
				Timeout:    time.Duration(cfg.Reranker.TEI.TimeoutSecs) * time.Second,
				MaxRetries: cfg.Reranker.TEI.MaxRetries,
			}),
			Logger: logger,
		}
	}

	ret := retriever.New(backend, stored.Records, logger)
	return &session{
		searcher: service.NewSearcher(emb, ret, strategy, cfg.Query.PreviewChars, logger),
		summary: fmt.Sprintf("%s: %d chunks, %s, scoring=%s, built %s",
			cfg.Index.Dir, stored.Meta.Count, stored.Meta.Embedder, strategy.Name(), stored.Meta.BuiltAt.Format(time.DateTime)),
		close: closeFn,
	}, nil
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	query := fs.String("query", "", "Query text (required)")
	k := fs.Int("k", 0, "Number of final results (default 5)")
	topKIndex := fs.Int("top-k-index", 0, "Candidates to fetch from the index (default 50)")
	rerankTopN := fs.Int("rerank-top-n", 0, "Candidates to re-rank, at most top-k-index (default 20)")
	debugTop := fs.Int("debug-print-top", 0, "Print the first N raw index hits")
	noRerank := fs.Bool("no-rerank", false, "Score by index similarity only")
	jsonOnly := fs.Bool("json-only", false, "Print only the JSON envelope")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if strings.TrimSpace(*query) == "" {
		return fmt.Errorf("%w: --query is required", domain.ErrInvalidConfig)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	sess, err := openSession(ctx, cfg, *noRerank, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	resp, err := sess.searcher.Query(ctx, service.QueryRequest{
		Query:      *query,
		K:          firstPositive(*k, cfg.Query.K),
		TopKIndex:  firstPositive(*topKIndex, cfg.Query.TopKIndex),
		RerankTopN: firstPositive(*rerankTopN, cfg.Query.RerankTopN),
		DebugTop:   *debugTop,
	})
	if err != nil {
		return err
	}
	if !*jsonOnly {
		output.Debug(os.Stdout, resp.Debug)
		output.Summary(os.Stdout, resp)
	}
	return output.JSON(os.Stdout, resp)
}

func runTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	noRerank := fs.Bool("no-rerank", false, "Score by index similarity only")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Logs would corrupt the alternate screen.
	cfg.Log.Level = "error"
	logger := newLogger(cfg.Log)

	sess, err := openSession(ctx, cfg, *noRerank, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	defaults := service.QueryRequest{K: cfg.Query.K, TopKIndex: cfg.Query.TopKIndex, RerankTopN: cfg.Query.RerankTopN}
	m := tui.New(sess.searcher, defaults, sess.summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Hashing.Dimension), nil
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:         cfg.OpenAI.BatchSize,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai embedder: %w", domain.ErrInvalidConfig, err)
		}
		return client, nil
	case "ollama":
		client := ollama.NewClient(ollama.Config{
			BaseURL:   cfg.Ollama.BaseURL,
			Model:     cfg.Ollama.Model,
			Timeout:   time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
			BatchSize: cfg.Ollama.BatchSize,
		})
		if !client.IsHealthy(ctx) {
			return nil, fmt.Errorf("%w: ollama not reachable at %s", domain.ErrInvalidConfig, cfg.Ollama.BaseURL)
		}
		return client, nil
	}
	return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfig, cfg.Type)
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
