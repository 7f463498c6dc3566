package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/citeseek/citeseek/internal/search"
	"github.com/citeseek/citeseek/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit        int
	publications bool
	researchers  bool
	yearFrom     int
	yearTo       int
	school       string
	noRerank     bool
	noCache      bool
	scores       bool
	jsonOutput   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed researchers and publications",
		Long: `Search the index using hybrid retrieval.

BM25 (keyword) and embedding (semantic) search run in parallel and
their rankings are fused. Results carry formatted citations.

Examples:
  citeseek search "protein folding"
  citeseek search "machine learning" --publications --limit 5
  citeseek search "quantum computing" --year-from 2020 --school Engineering
  citeseek search "neural networks" --json --scores`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&opts.publications, "publications", false, "Restrict results to publications")
	cmd.Flags().BoolVar(&opts.researchers, "researchers", false, "Restrict results to researcher profiles")
	cmd.Flags().IntVar(&opts.yearFrom, "year-from", 0, "Earliest publication year, inclusive")
	cmd.Flags().IntVar(&opts.yearTo, "year-to", 0, "Latest publication year, inclusive")
	cmd.Flags().StringVar(&opts.school, "school", "", "Filter researchers by school (substring match)")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip cross-encoder reranking")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the result cache")
	cmd.Flags().BoolVar(&opts.scores, "scores", false, "Include per-signal score statistics")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.publications && opts.researchers {
		return fmt.Errorf("--publications and --researchers are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !indexExists(cfg) {
		return fmt.Errorf("no index found in %s\nRun 'citeseek index' first", cfg.Paths.DataDir)
	}

	handle, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	searchOpts := search.Options{
		Limit: opts.limit,
		Filters: search.Filters{
			YearFrom: opts.yearFrom,
			YearTo:   opts.yearTo,
			School:   opts.school,
		},
		IncludeScores: opts.scores,
		NoRerank:      opts.noRerank,
		NoCache:       opts.noCache,
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	var resp *search.Response
	switch {
	case opts.publications:
		resp, err = handle.engine.SearchPublications(ctx, query, searchOpts)
	case opts.researchers:
		resp, err = handle.engine.SearchResearchers(ctx, query, searchOpts)
	default:
		resp, err = handle.engine.Search(ctx, query, searchOpts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	slog.Info("search_complete",
		slog.Int("results", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded()))

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := cmd.OutOrStdout()
	writer := ui.NewResultWriter(out, ui.StylesFor(out, noColor))
	writer.WriteResponse(resp)
	return nil
}
