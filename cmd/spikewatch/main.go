package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd runs the monitor.
var rootCmd = &cobra.Command{
	Use:   "spikewatch",
	Short: "Hyperliquid volume spike and momentum monitor",
	Long: `Polls Hyperliquid perpetuals on a fixed interval, flags assets whose
24h volume jumps well above their recent baseline and confirms the move
against an hourly EMA before alerting via Telegram or the console.`,
	SilenceUsage: true,
	RunE:         runMonitor,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
