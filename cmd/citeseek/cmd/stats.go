package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citeseek/citeseek/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Display chunk, document, and vector counts plus reranker availability.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
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

	stats, err := handle.engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := cmd.OutOrStdout()
	writer := ui.NewResultWriter(out, ui.StylesFor(out, noColor))
	writer.WriteStats(stats)
	return nil
}
