// Package cmd provides the CLI commands for citeseek.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/citeseek/citeseek/internal/citation"
	"github.com/citeseek/citeseek/internal/config"
	"github.com/citeseek/citeseek/internal/embed"
	"github.com/citeseek/citeseek/internal/logging"
	"github.com/citeseek/citeseek/internal/search"
	"github.com/citeseek/citeseek/internal/store"
	"github.com/citeseek/citeseek/internal/telemetry"
	"github.com/citeseek/citeseek/pkg/version"
)

// Global flags shared by all commands.
var (
	configPath string
	dataDir    string
	debugMode  bool
	noColor    bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the citeseek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "citeseek",
		Short: "Hybrid search over researchers and publications",
		Long: `Citeseek indexes researcher profiles and publication records and
serves hybrid queries over them.

Lexical (BM25) and vector (embedding) retrieval run in parallel and
their rankings are fused, optionally reranked by a cross-encoder, and
returned with ready-to-paste bibliographic citations.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("citeseek version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.config/citeseek/config.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.citeseek)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig loads the configuration, applying the --data-dir override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}
	return cfg, nil
}

// engineHandle bundles the assembled engine with the pieces commands need
// to reach directly. Closing the engine closes every dependency.
type engineHandle struct {
	engine     *search.Engine
	catalog    *store.Catalog
	vector     store.VectorStore
	metrics    *telemetry.QueryMetrics
	vectorPath string
}

func (h *engineHandle) Close() error {
	return h.engine.Close()
}

// indexExists reports whether an index has been built in the data directory.
func indexExists(cfg *config.Config) bool {
	_, err := os.Stat(cfg.Paths.CatalogPath())
	return err == nil
}

// openEngine assembles the full search stack from configuration: catalog,
// lexical index, vector store with exhaustive fallback, embedder, and the
// engine with reranking, citations, caching, and telemetry wired in.
func openEngine(ctx context.Context, cfg *config.Config) (*engineHandle, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	catalog, err := store.NewCatalog(cfg.Paths.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(cfg.Paths.BM25BasePath(), cfg.Search.BM25Backend)
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	// An existing vector index fixes the dimensionality; otherwise the
	// configured embedding size applies.
	vectorPath := cfg.Paths.VectorPath()
	dims := cfg.Embeddings.Dimensions
	if existing, err := store.ReadHNSWStoreDimensions(vectorPath); err == nil && existing > 0 {
		dims = existing
	}

	vector, err := buildVectorStore(dims, vectorPath)
	if err != nil {
		_ = bm25.Close()
		_ = catalog.Close()
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		_ = vector.Close()
		_ = bm25.Close()
		_ = catalog.Close()
		return nil, err
	}

	metrics := telemetry.NewQueryMetrics()

	opts := []search.EngineOption{
		search.WithCitations(citation.NewFormatter(citation.Style(cfg.Citation.Style), cfg.Citation.IncludeDOI)),
		search.WithBoostWeights(search.BoostWeights{
			Citation:   cfg.Reranker.CitationWeight,
			OpenAccess: cfg.Reranker.OpenAccessWeight,
			Recency:    cfg.Reranker.RecencyWeight,
		}),
		search.WithMetrics(metrics),
		search.WithResultCache(cfg.Cache.ResultEntries, cfg.Cache.ResultTTL),
	}

	if cfg.Reranker.Enabled {
		reranker, err := search.NewCrossEncoderReranker(ctx, search.CrossEncoderConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout,
		})
		if err != nil {
			slog.Warn("reranker_unavailable",
				slog.String("endpoint", cfg.Reranker.Endpoint),
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, search.WithReranker(reranker))
		}
	}

	engine, err := search.NewEngine(bm25, vector, embedder, catalog, engineConfig(cfg), opts...)
	if err != nil {
		_ = embedder.Close()
		_ = vector.Close()
		_ = bm25.Close()
		_ = catalog.Close()
		return nil, err
	}

	return &engineHandle{
		engine:     engine,
		catalog:    catalog,
		vector:     vector,
		metrics:    metrics,
		vectorPath: vectorPath,
	}, nil
}

// buildVectorStore creates the HNSW graph backed by an exhaustive scan
// fallback, loading a persisted index when one exists.
func buildVectorStore(dims int, vectorPath string) (store.VectorStore, error) {
	hnswStore, err := store.NewHNSWStore(store.HNSWConfig{Dimensions: dims})
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	exhaustive, err := store.NewExhaustiveStore(dims)
	if err != nil {
		_ = hnswStore.Close()
		return nil, fmt.Errorf("create fallback store: %w", err)
	}
	vector, err := store.NewFallbackStore(hnswStore, exhaustive, slog.Default())
	if err != nil {
		_ = exhaustive.Close()
		_ = hnswStore.Close()
		return nil, err
	}

	if _, err := os.Stat(vectorPath); err == nil {
		// A corrupt graph degrades to the exhaustive snapshot inside Load;
		// this error means neither file was usable and the store starts
		// empty.
		if loadErr := vector.Load(vectorPath); loadErr != nil {
			slog.Warn("vector_load_failed", slog.String("error", loadErr.Error()))
		}
	}
	return vector, nil
}

// buildEmbedder creates the Ollama embedder wrapped in the query cache.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embed.NewCachedEmbedder(ollama, cfg.Cache.EmbeddingEntries), nil
}

// engineConfig maps file configuration onto engine tuning parameters.
func engineConfig(cfg *config.Config) search.EngineConfig {
	ec := search.DefaultEngineConfig()
	ec.Fusion = search.FusionMethod(cfg.Search.Fusion)
	ec.LexicalWeight = cfg.Search.LexicalWeight
	ec.VectorWeight = cfg.Search.VectorWeight
	ec.RRFConstant = cfg.Search.RRFConstant
	ec.BranchLimit = cfg.Search.BranchLimit
	ec.CandidateBudget = cfg.Search.CandidateBudget
	ec.DefaultLimit = cfg.Search.MaxResults
	ec.VectorThreshold = float32(cfg.Search.VectorThreshold)
	return ec
}
