package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/citeseek/citeseek/internal/config"
	"github.com/citeseek/citeseek/internal/ingest"
	"github.com/citeseek/citeseek/internal/store"
	"github.com/citeseek/citeseek/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		chunksPath  string
		catalogPath string
		rebuild     bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the search index from chunk and catalog files",
		Long: `Index researcher and publication data for searching.

Reads a JSONL chunk file, generates embeddings, and builds the lexical
and vector indices. The optional catalog file provides the bibliographic
metadata (staff, publications, authorship) that enriches results.

Use --rebuild to discard existing index data and start fresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Ctrl+C cancels the context so embedding batches stop cleanly.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, cmd, chunksPath, catalogPath, rebuild)
		},
	}

	cmd.Flags().StringVar(&chunksPath, "chunks", "", "JSONL chunk file to index (required)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog JSON file with bibliographic metadata")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard existing index data and rebuild from scratch")
	_ = cmd.MarkFlagRequired("chunks")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, chunksPath, catalogPath string, rebuild bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// One build at a time per data directory. A held lock means another
	// citeseek process is already indexing.
	lock := flock.New(cfg.Paths.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another index build is running (lock: %s)", cfg.Paths.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	out := cmd.OutOrStdout()
	renderer := ui.NewProgressRenderer(out, ui.StylesFor(out, noColor))

	if rebuild {
		if err := clearIndexData(cfg); err != nil {
			return fmt.Errorf("clear index data: %w", err)
		}
		renderer.Update(ui.ProgressEvent{Stage: ui.StageLoading, Message: "cleared existing index data"})
	}

	handle, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	start := time.Now()
	loader := ingest.NewLoader(handle.engine, handle.catalog)

	var counts ingest.CatalogCounts
	if catalogPath != "" {
		renderer.Update(ui.ProgressEvent{Stage: ui.StageLoading, Message: "loading catalog " + catalogPath})
		counts, err = loader.LoadCatalog(ctx, catalogPath)
		if err != nil {
			renderer.Error(err)
			return err
		}
		renderer.Update(ui.ProgressEvent{
			Stage: ui.StageLoading,
			Message: fmt.Sprintf("catalog loaded: %d staff, %d publications, %d authors",
				counts.Staff, counts.Publications, counts.Authors),
		})
	}

	renderer.Update(ui.ProgressEvent{Stage: ui.StageEmbedding, Message: "indexing chunks from " + chunksPath})
	indexed, err := loader.LoadChunks(ctx, chunksPath, func(current, _ int) {
		renderer.Update(ui.ProgressEvent{
			Stage:   ui.StageIndexing,
			Message: fmt.Sprintf("%d chunks indexed", current),
		})
	})
	if err != nil {
		renderer.Error(err)
		return err
	}

	if err := handle.vector.Save(handle.vectorPath); err != nil {
		renderer.Error(err)
		return fmt.Errorf("save vector index: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Chunks:       indexed,
		Publications: counts.Publications,
		Staff:        counts.Staff,
		Duration:     time.Since(start),
		EmbedModel:   cfg.Embeddings.Model,
		Dimensions:   cfg.Embeddings.Dimensions,
	})
	return nil
}

// clearIndexData removes index files from the data directory. The config
// file lives elsewhere and is untouched.
func clearIndexData(cfg *config.Config) error {
	vectorPath := cfg.Paths.VectorPath()
	bm25Path := store.GetBM25IndexPath(cfg.Paths.DataDir, string(store.BM25BackendSQLite))
	paths := []string{
		cfg.Paths.CatalogPath(),
		cfg.Paths.CatalogPath() + "-shm",
		cfg.Paths.CatalogPath() + "-wal",
		bm25Path,
		bm25Path + "-shm",
		bm25Path + "-wal",
		vectorPath,
		vectorPath + ".meta",
		vectorPath + ".flat",
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	// Bleve indexes are directories.
	blevePath := store.GetBM25IndexPath(cfg.Paths.DataDir, string(store.BM25BackendBleve))
	if info, err := os.Stat(blevePath); err == nil && info.IsDir() {
		if err := os.RemoveAll(blevePath); err != nil {
			return err
		}
	}
	return nil
}
