package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/universe"
	"github.com/spf13/cobra"
)

var (
	strictListWrite  bool
	strictListOutput string
)

// strictListCmd regenerates the curated asset list from exchange metadata.
var strictListCmd = &cobra.Command{
	Use:   "strict-list",
	Short: "Compute the strict asset list from exchange metadata",
	Long: `Fetches perpetual metadata and keeps listed, cross-margin assets with
at least 10x leverage and a tiered margin table.

Examples:
  spikewatch strict-list
  spikewatch strict-list --write
  spikewatch strict-list --write --output lists/strict.json`,
	RunE: runStrictList,
}

func init() {
	rootCmd.AddCommand(strictListCmd)

	strictListCmd.Flags().BoolVar(&strictListWrite, "write", false, "Write the list to the configured strict list path")
	strictListCmd.Flags().StringVar(&strictListOutput, "output", "", "Override the output path (default: universe.strict_list_path)")
}

func runStrictList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	infos, err := newHyperliquidClient(cfg).Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch metadata: %w", err)
	}
	names := universe.SelectStrict(infos, cfg.Hyperliquid.Excluded)
	logger.Info("Selected %d of %d assets", len(names), len(infos))

	fmt.Fprintf(cmd.OutOrStdout(), "%d assets: %s\n", len(names), strings.Join(names, ", "))

	if !strictListWrite {
		return nil
	}
	if len(names) == 0 {
		return fmt.Errorf("no assets matched; refusing to overwrite the strict list")
	}
	path := cfg.Universe.StrictListPath
	if strictListOutput != "" {
		path = strictListOutput
	}
	if err := universe.SaveStrictList(path, names); err != nil {
		return fmt.Errorf("failed to write strict list: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
