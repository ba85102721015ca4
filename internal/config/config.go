package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docsearch/internal/domain"
)

// LoaderConfig selects which files under Root are indexed.
type LoaderConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxWords     int `yaml:"max_words"`
	MinWords     int `yaml:"min_words"`
	OverlapWords int `yaml:"overlap_words"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// OllamaEmbedderConfig holds configuration for a local Ollama server.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Ollama  *OllamaEmbedderConfig  `yaml:"ollama,omitempty"`
}

// TEIConfig points at a text-embeddings-inference reranker.
type TEIConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// RerankerConfig selects the cross-encoder; "none" scores by index similarity.
type RerankerConfig struct {
	Type string     `yaml:"type"`
	TEI  *TEIConfig `yaml:"tei,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// IndexConfig says where the index pair lives and which backend searches it.
type IndexConfig struct {
	Dir     string        `yaml:"dir"`
	Backend string        `yaml:"backend"`
	Qdrant  *QdrantConfig `yaml:"qdrant,omitempty"`
}

type QueryConfig struct {
	K            int `yaml:"k"`
	TopKIndex    int `yaml:"top_k_index"`
	RerankTopN   int `yaml:"rerank_top_n"`
	PreviewChars int `yaml:"preview_chars"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Loader   LoaderConfig   `yaml:"loader"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Reranker RerankerConfig `yaml:"reranker"`
	Index    IndexConfig    `yaml:"index"`
	Query    QueryConfig    `yaml:"query"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads a config from path. A missing or unreadable file is a config
// error; only LoadDefault falls back to defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrInvalidConfig, path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./docsearch.yaml first, then ~/.config/docsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/docsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docsearch.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedder type %q", domain.ErrInvalidConfig, c.Embedder.Type)
	}
	switch c.Reranker.Type {
	case "none", "tei":
	default:
		return fmt.Errorf("%w: unknown reranker type %q", domain.ErrInvalidConfig, c.Reranker.Type)
	}
	switch c.Index.Backend {
	case "flat", "qdrant":
	default:
		return fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidConfig, c.Index.Backend)
	}
	if c.Chunker.MinWords > c.Chunker.MaxWords {
		return fmt.Errorf("%w: chunker.min_words %d exceeds max_words %d", domain.ErrInvalidConfig, c.Chunker.MinWords, c.Chunker.MaxWords)
	}
	if c.Chunker.OverlapWords < 0 || c.Chunker.OverlapWords >= c.Chunker.MaxWords {
		return fmt.Errorf("%w: chunker.overlap_words must be in [0, max_words)", domain.ErrInvalidConfig)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Loader:   LoaderConfig{Root: "./docs", Extensions: []string{".md", ".markdown", ".txt", ".json"}},
		Chunker:  ChunkerConfig{MaxWords: 350, MinWords: 20},
		Embedder: EmbedderConfig{Type: "hashing"},
		Reranker: RerankerConfig{Type: "none"},
		Index:    IndexConfig{Dir: "./index", Backend: "flat"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Loader.Root == "" {
		cfg.Loader.Root = "./docs"
	}
	if len(cfg.Loader.Extensions) == 0 {
		cfg.Loader.Extensions = []string{".md", ".markdown", ".txt", ".json"}
	}
	if cfg.Chunker.MaxWords == 0 {
		cfg.Chunker.MaxWords = 350
	}
	if cfg.Chunker.MinWords == 0 {
		cfg.Chunker.MinWords = 20
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 120
		}
	}
	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "none"
	}
	if cfg.Reranker.Type == "tei" {
		if cfg.Reranker.TEI == nil {
			cfg.Reranker.TEI = &TEIConfig{}
		}
		if cfg.Reranker.TEI.URL == "" {
			cfg.Reranker.TEI.URL = "http://localhost:8080"
		}
		if cfg.Reranker.TEI.TimeoutSecs == 0 {
			cfg.Reranker.TEI.TimeoutSecs = 30
		}
		if cfg.Reranker.TEI.MaxRetries == 0 {
			cfg.Reranker.TEI.MaxRetries = 2
		}
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "./index"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "flat"
	}
	if cfg.Index.Backend == "qdrant" {
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		if cfg.Index.Qdrant.Addr == "" {
			cfg.Index.Qdrant.Addr = "localhost:6334"
		}
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "docsearch"
		}
	}
	if cfg.Query.K == 0 {
		cfg.Query.K = 5
	}
	if cfg.Query.TopKIndex == 0 {
		cfg.Query.TopKIndex = 50
	}
	if cfg.Query.RerankTopN == 0 {
		cfg.Query.RerankTopN = 20
	}
	if cfg.Query.PreviewChars == 0 {
		cfg.Query.PreviewChars = 800
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
