package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"edurag/internal/domain"
)

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig configures ranking and prompt assembly.
type RetrievalConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxRetrievedDocs    int     `yaml:"max_retrieved_docs"`
	QueryTimeoutSecs    int     `yaml:"query_timeout_secs"`
	MaxContextRunes     int     `yaml:"max_context_runes"`
}

// QueryTimeout returns the per-question deadline, zero meaning none.
func (r RetrievalConfig) QueryTimeout() time.Duration {
	return time.Duration(r.QueryTimeoutSecs) * time.Second
}

// HashEmbedderConfig configures the offline hashing embedder.
type HashEmbedderConfig struct {
	Dimension int    `yaml:"dimension"`
	Seed      uint64 `yaml:"seed"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Parallelism       int     `yaml:"parallelism"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	Hash   *HashEmbedderConfig   `yaml:"hash,omitempty"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SQLiteConfig locates the local index database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Language    domain.Language   `yaml:"language"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// The file is decoded over Default(), so keys it leaves out keep their defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/edurag/config.yaml.
// If neither exists, it writes defaults to ~/.config/edurag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
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
	cfg := Default()
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

// Validate rejects settings the engine cannot run with. Every violation
// wraps domain.ErrInvalidConfiguration.
func (c *AppConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, fmt.Sprintf(format, args...)))
	}
	if c.Chunker.ChunkSize <= 0 {
		bad("chunk_size must be > 0, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		bad("chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
	}
	th := c.Retrieval.SimilarityThreshold
	if math.IsNaN(th) || th < -1 || th > 1 {
		bad("similarity_threshold must be in [-1, 1], got %v", th)
	}
	if c.Retrieval.MaxRetrievedDocs < 0 {
		bad("max_retrieved_docs must be >= 0, got %d", c.Retrieval.MaxRetrievedDocs)
	}
	if c.Retrieval.QueryTimeoutSecs < 0 || c.Retrieval.MaxContextRunes < 0 {
		bad("query_timeout_secs and max_context_runes must be >= 0")
	}
	switch c.Embedder.Type {
	case "hash", "openai":
	default:
		bad("unknown embedder type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "sqlite":
		if c.VectorStore.SQLite == nil || c.VectorStore.SQLite.Path == "" {
			bad("vector_store.sqlite.path is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			bad("vector_store.qdrant.url is required")
		}
	default:
		bad("unknown vector store type %q", c.VectorStore.Type)
	}
	if !c.Language.Valid() {
		bad("unsupported language %q", c.Language)
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "edurag", "config.yaml"), nil
}

func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".edurag", "index.db")
	}
	return filepath.Join(home, ".edurag", "index.db")
}

// Default returns the built-in configuration. The index persists in SQLite
// under ~/.edurag so separate CLI runs share it.
func Default() *AppConfig {
	cfg := &AppConfig{
		Chunker: ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.5,
			MaxRetrievedDocs:    5,
			QueryTimeoutSecs:    15,
		},
		Embedder: EmbedderConfig{
			Type:   "hash",
			Hash:   &HashEmbedderConfig{Dimension: 256},
			OpenAI: defaultOpenAI(),
		},
		VectorStore: VectorStoreConfig{
			Type:   "sqlite",
			SQLite: &SQLiteConfig{Path: defaultDataPath()},
		},
		Language: domain.Gujarati,
		Log:      LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func defaultOpenAI() *OpenAIEmbedderConfig {
	return &OpenAIEmbedderConfig{
		BaseURL:     "https://api.openai.com/v1",
		APIKeyEnv:   "OPENAI_API_KEY",
		Model:       "text-embedding-3-small",
		TimeoutSecs: 30,
		MaxAttempts: 4,
		Parallelism: 4,
	}
}

// applyConfigDefaults fills zero values left after decoding. An explicitly
// empty openai.api_key_env is kept: requests are then sent without a key.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hash"
	}
	if cfg.Embedder.Type == "hash" {
		if cfg.Embedder.Hash == nil {
			cfg.Embedder.Hash = &HashEmbedderConfig{}
		}
		if cfg.Embedder.Hash.Dimension == 0 {
			cfg.Embedder.Hash.Dimension = 256
		}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = defaultOpenAI()
		}
		o, def := cfg.Embedder.OpenAI, defaultOpenAI()
		if o.BaseURL == "" {
			o.BaseURL = def.BaseURL
		}
		if o.Model == "" {
			o.Model = def.Model
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = def.TimeoutSecs
		}
		if o.MaxAttempts == 0 {
			o.MaxAttempts = def.MaxAttempts
		}
		if o.Parallelism == 0 {
			o.Parallelism = def.Parallelism
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "sqlite" {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = defaultDataPath()
		}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "edurag_chunks"
	}
	if cfg.Language == "" {
		cfg.Language = domain.Gujarati
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
