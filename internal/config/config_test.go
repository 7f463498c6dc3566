package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FusionRRF, cfg.Search.Fusion)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 50, cfg.Search.BranchLimit)
	assert.Equal(t, 80, cfg.Search.CandidateBudget)
	assert.Equal(t, StyleAPA, cfg.Citation.Style)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Search.BM25Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
search:
  fusion: weighted
  lexical_weight: 0.3
  vector_weight: 0.7
  max_results: 25
citation:
  style: ieee
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FusionWeighted, cfg.Search.Fusion)
	assert.Equal(t, 0.3, cfg.Search.LexicalWeight)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, StyleIEEE, cfg.Citation.Style)
	// Untouched values keep defaults.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("citation:\n  style: mla\n"), 0o644))

	t.Setenv("CITESEEK_CITATION_STYLE", "ieee")
	t.Setenv("CITESEEK_RRF_CONSTANT", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StyleIEEE, cfg.Citation.Style)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
}

func TestValidate_WeightedFusionWeights(t *testing.T) {
	cfg := Default()
	cfg.Search.Fusion = FusionWeighted
	cfg.Search.LexicalWeight = 0.8
	cfg.Search.VectorWeight = 0.8
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestValidate_RRFWeightsNotRequired(t *testing.T) {
	// RRF ignores weights, so an unbalanced pair is fine.
	cfg := Default()
	cfg.Search.LexicalWeight = 0.9
	cfg.Search.VectorWeight = 0.9
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad fusion", func(c *Config) { c.Search.Fusion = "max" }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"zero branch limit", func(c *Config) { c.Search.BranchLimit = 0 }},
		{"bad threshold", func(c *Config) { c.Search.VectorThreshold = 1.5 }},
		{"bad backend", func(c *Config) { c.Search.BM25Backend = "tantivy" }},
		{"bad style", func(c *Config) { c.Citation.Style = "chicago" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Search.MaxResults = 42
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.Search.MaxResults)
}

func TestPathsDerivation(t *testing.T) {
	p := PathsConfig{DataDir: "/data/citeseek"}
	assert.Equal(t, "/data/citeseek/catalog.db", p.CatalogPath())
	assert.Equal(t, "/data/citeseek/bm25", p.BM25BasePath())
	assert.Equal(t, "/data/citeseek/vectors.hnsw", p.VectorPath())
	assert.Equal(t, "/data/citeseek/index.lock", p.LockPath())
}
