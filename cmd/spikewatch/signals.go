package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/rewired-gh/spikewatch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	signalsAsset string
	signalsLimit int
)

// signalsCmd lists journaled signals.
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List recently detected signals from the journal",
	Long: `Reads the signal journal and prints the most recent detections.

Examples:
  spikewatch signals
  spikewatch signals --limit 50
  spikewatch signals --asset SOL`,
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().StringVar(&signalsAsset, "asset", "", "Only show signals for this asset")
	signalsCmd.Flags().IntVar(&signalsLimit, "limit", 20, "Maximum number of signals to show")
}

func runSignals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Storage.Enabled {
		return fmt.Errorf("storage is disabled; no journal to read")
	}

	store, err := storage.New(cfg.Storage.MaxSignals, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	var signals []models.Signal
	if signalsAsset != "" {
		signals, err = store.SignalsForAsset(signalsAsset)
		if len(signals) > signalsLimit {
			signals = signals[:signalsLimit]
		}
	} else {
		signals, err = store.RecentSignals(signalsLimit)
	}
	if err != nil {
		return err
	}
	total, err := store.CountSignals()
	if err != nil {
		return err
	}

	writeSignals(cmd.OutOrStdout(), signals, total)
	return nil
}

func writeSignals(out io.Writer, signals []models.Signal, total int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTED\tASSET\tVOLUME\tSIGMA\tPRICE\tAVG\tSLOPE\tNOTIFIED")
	for _, s := range signals {
		fmt.Fprintf(w, "%s\t%s\t$%s\t%.2f\t%.4f\t%s %.4f\t%s\t%t\n",
			s.DetectedAt.UTC().Format("2006-01-02 15:04"),
			s.Asset.Name,
			humanize.Comma(int64(s.Asset.Volume24h+0.5)),
			s.Volume.SigmaDeviation,
			s.Momentum.CurrentPrice,
			s.Momentum.Method, s.Momentum.EMAValue,
			s.Momentum.EMASlope,
			s.Notified,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "%d of %d journaled signals\n", len(signals), total)
}
