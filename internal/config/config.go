// Package config loads and validates citeseek configuration. Values resolve
// in priority order: built-in defaults, then the YAML config file, then
// CITESEEK_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FusionMethod selects how lexical and vector rankings are combined.
type FusionMethod string

const (
	// FusionRRF combines rankings by reciprocal rank (default).
	FusionRRF FusionMethod = "rrf"
	// FusionWeighted combines min-max normalized scores by weight.
	FusionWeighted FusionMethod = "weighted"
)

// CitationStyle selects the bibliographic citation format.
type CitationStyle string

const (
	StyleAPA  CitationStyle = "apa"
	StyleIEEE CitationStyle = "ieee"
	StyleMLA  CitationStyle = "mla"
)

// Config is the complete citeseek configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	Citation   CitationConfig   `yaml:"citation"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig locates the on-disk data directory. Index and catalog paths
// derive from DataDir.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// CatalogPath returns the SQLite catalog location.
func (p PathsConfig) CatalogPath() string {
	return filepath.Join(p.DataDir, "catalog.db")
}

// BM25BasePath returns the extensionless lexical index base path.
func (p PathsConfig) BM25BasePath() string {
	return filepath.Join(p.DataDir, "bm25")
}

// VectorPath returns the HNSW index location.
func (p PathsConfig) VectorPath() string {
	return filepath.Join(p.DataDir, "vectors.hnsw")
}

// LockPath returns the index build lock file location.
func (p PathsConfig) LockPath() string {
	return filepath.Join(p.DataDir, "index.lock")
}

// SearchConfig tunes the hybrid retrieval pipeline.
type SearchConfig struct {
	// Fusion selects rrf (default) or weighted score combination.
	Fusion FusionMethod `yaml:"fusion"`

	// LexicalWeight and VectorWeight apply to weighted fusion and must sum
	// to 1.0.
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`

	// RRFConstant is the rank smoothing parameter k. Default 60.
	RRFConstant int `yaml:"rrf_constant"`

	// BranchLimit caps how many hits each retrieval branch contributes
	// before fusion. Default 50.
	BranchLimit int `yaml:"branch_limit"`

	// CandidateBudget caps how many fused candidates advance to reranking.
	// Default 80.
	CandidateBudget int `yaml:"candidate_budget"`

	// MaxResults caps the final response size. Default 10.
	MaxResults int `yaml:"max_results"`

	// VectorThreshold drops vector hits below this cosine similarity.
	// Zero disables the cutoff.
	VectorThreshold float64 `yaml:"vector_threshold"`

	// BM25Backend selects "sqlite" (default) or "bleve".
	BM25Backend string `yaml:"bm25_backend"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	OllamaHost string        `yaml:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RerankerConfig configures the cross-encoder reranking stage and its
// metadata boosts.
type RerankerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`

	// CitationWeight scales the log-dampened citation count boost.
	CitationWeight float64 `yaml:"citation_weight"`
	// OpenAccessWeight is the flat boost for open-access publications.
	OpenAccessWeight float64 `yaml:"open_access_weight"`
	// RecencyWeight scales the publication year boost.
	RecencyWeight float64 `yaml:"recency_weight"`
}

// CitationConfig configures bibliographic formatting.
type CitationConfig struct {
	Style      CitationStyle `yaml:"style"`
	IncludeDOI bool          `yaml:"include_doi"`
}

// CacheConfig sizes the LRU caches.
type CacheConfig struct {
	// EmbeddingEntries caps the query embedding cache. Default 1000.
	EmbeddingEntries int `yaml:"embedding_entries"`
	// ResultEntries caps the search result cache. Default 100.
	ResultEntries int `yaml:"result_entries"`
	// ResultTTL expires cached results. Default 5m.
	ResultTTL time.Duration `yaml:"result_ttl"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultDataDir returns ~/.citeseek, falling back to the temp directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".citeseek")
	}
	return filepath.Join(home, ".citeseek")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Search: SearchConfig{
			Fusion:          FusionRRF,
			LexicalWeight:   0.5,
			VectorWeight:    0.5,
			RRFConstant:     60,
			BranchLimit:     50,
			CandidateBudget: 80,
			MaxResults:      10,
			VectorThreshold: 0,
			BM25Backend:     "sqlite",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			Timeout:    30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled:          false,
			Endpoint:         "http://localhost:8088",
			Model:            "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout:          10 * time.Second,
			CitationWeight:   0.1,
			OpenAccessWeight: 0.05,
			RecencyWeight:    0.05,
		},
		Citation: CitationConfig{
			Style:      StyleAPA,
			IncludeDOI: true,
		},
		Cache: CacheConfig{
			EmbeddingEntries: 1000,
			ResultEntries:    100,
			ResultTTL:        5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the config file location, honoring
// XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "citeseek", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".citeseek", "config.yaml")
	}
	return filepath.Join(home, ".config", "citeseek", "config.yaml")
}

// Load reads configuration from path, layering it over defaults and under
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers CITESEEK_* environment variables over the loaded
// values. Env vars win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CITESEEK_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("CITESEEK_FUSION"); v != "" {
		c.Search.Fusion = FusionMethod(v)
	}
	if v := os.Getenv("CITESEEK_LEXICAL_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.LexicalWeight = f
		}
	}
	if v := os.Getenv("CITESEEK_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("CITESEEK_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("CITESEEK_BM25_BACKEND"); v != "" {
		c.Search.BM25Backend = v
	}
	if v := os.Getenv("CITESEEK_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CITESEEK_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CITESEEK_RERANKER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Reranker.Enabled = b
		}
	}
	if v := os.Getenv("CITESEEK_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("CITESEEK_CITATION_STYLE"); v != "" {
		c.Citation.Style = CitationStyle(v)
	}
	if v := os.Getenv("CITESEEK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks structural consistency.
func (c *Config) Validate() error {
	switch c.Search.Fusion {
	case FusionRRF, FusionWeighted:
	default:
		return fmt.Errorf("invalid fusion method %q (valid: rrf, weighted)", c.Search.Fusion)
	}

	if c.Search.Fusion == FusionWeighted {
		sum := c.Search.LexicalWeight + c.Search.VectorWeight
		if math.Abs(sum-1.0) > 0.001 {
			return fmt.Errorf("lexical_weight + vector_weight must equal 1.0, got %.3f", sum)
		}
		if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
			return fmt.Errorf("fusion weights must be non-negative")
		}
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.BranchLimit <= 0 {
		return fmt.Errorf("branch_limit must be positive, got %d", c.Search.BranchLimit)
	}
	if c.Search.CandidateBudget <= 0 {
		return fmt.Errorf("candidate_budget must be positive, got %d", c.Search.CandidateBudget)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.VectorThreshold < 0 || c.Search.VectorThreshold > 1 {
		return fmt.Errorf("vector_threshold must be in [0,1], got %.3f", c.Search.VectorThreshold)
	}

	switch c.Search.BM25Backend {
	case "sqlite", "bleve", "":
	default:
		return fmt.Errorf("invalid bm25_backend %q (valid: sqlite, bleve)", c.Search.BM25Backend)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	switch c.Citation.Style {
	case StyleAPA, StyleIEEE, StyleMLA:
	default:
		return fmt.Errorf("invalid citation style %q (valid: apa, ieee, mla)", c.Citation.Style)
	}

	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
