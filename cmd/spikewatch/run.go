package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/spikewatch/internal/alert"
	"github.com/rewired-gh/spikewatch/internal/config"
	"github.com/rewired-gh/spikewatch/internal/hyperliquid"
	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/metrics"
	"github.com/rewired-gh/spikewatch/internal/monitor"
	"github.com/rewired-gh/spikewatch/internal/scheduler"
	"github.com/rewired-gh/spikewatch/internal/storage"
	"github.com/rewired-gh/spikewatch/internal/telegram"
	"github.com/rewired-gh/spikewatch/internal/universe"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func newHyperliquidClient(cfg *config.Config) *hyperliquid.Client {
	return hyperliquid.NewClient(
		cfg.Hyperliquid.APIURL,
		cfg.Hyperliquid.Timeout,
		hyperliquid.ClientConfig{
			MaxRetries:          cfg.Hyperliquid.MaxRetries,
			RetryDelayBase:      cfg.Hyperliquid.RetryDelayBase,
			RateLimitRPS:        cfg.Hyperliquid.RateLimitRPS,
			MaxIdleConns:        cfg.Hyperliquid.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Hyperliquid.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Hyperliquid.IdleConnTimeout,
			Excluded:            cfg.Hyperliquid.Excluded,
		},
	)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded from %s", configPath)

	recorder := metrics.New()
	client := newHyperliquidClient(cfg)

	var store *storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage.MaxSignals, cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	dispatchOpts := []alert.Option{alert.WithRecorder(recorder)}
	if telegramClient != nil {
		dispatchOpts = append(dispatchOpts, alert.WithSender(telegramClient))
	}
	if store != nil {
		dispatchOpts = append(dispatchOpts, alert.WithJournal(store))
	}
	dispatcher := alert.NewDispatcher(cfg.Detector.EMAPeriods, dispatchOpts...)

	engine := monitor.New(client, dispatcher, cfg.MonitorConfig(), monitor.WithMetrics(recorder))

	rules := cfg.UniverseRules()
	if rules.StrictListEnabled && len(rules.StrictList) == 0 {
		logger.Warn("Strict list %s is empty or missing; no assets will be analyzed. Run `spikewatch strict-list --write`.", cfg.Universe.StrictListPath)
	}

	runnerOpts := []scheduler.Option{scheduler.WithRecorder(recorder)}
	if telegramClient != nil {
		runnerOpts = append(runnerOpts, scheduler.WithNotifier(telegramClient))
	}
	if store != nil {
		runnerOpts = append(runnerOpts, scheduler.WithRotator(store))
	}
	runner := scheduler.New(client, engine, rules, cfg.Hyperliquid.PollInterval, runnerOpts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		serveMetrics(ctx, cfg.Metrics.ListenAddr, recorder)
	}

	summary := startupSummary(cfg, rules)
	logger.Info("Starting monitoring service\n%s", summary)
	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, runner.Status)
		if err := telegramClient.SendStartup(summary); err != nil {
			logger.Warn("Failed to send startup notification to Telegram: %v", err)
		}
	} else {
		fmt.Println("Telegram disabled: signals will be printed to the console")
	}

	runner.Run(ctx)
	return nil
}

// serveMetrics exposes /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, recorder *metrics.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func startupSummary(cfg *config.Config, rules universe.Rules) string {
	d := cfg.Detector
	var b strings.Builder
	fmt.Fprintf(&b, "Volume: sigma>=%.1f, z>=%.1f, %d periods (min %d)\n",
		d.SigmaThreshold, d.ZScoreThreshold, d.VolumePeriods, d.MinPeriods)
	fmt.Fprintf(&b, "Momentum: EMA-%d over %d hourly candles, price above EMA: %t, slope filter: %t\n",
		d.EMAPeriods, d.EMAPeriods+d.CandleSlack, d.PriceAboveEMARequired, d.EMASlopeFilterEnabled)
	if rules.StrictListEnabled {
		fmt.Fprintf(&b, "Universe: strict list (%d assets), min volume $%s\n",
			len(rules.StrictList), humanize.Commaf(rules.MinVolume))
	} else {
		fmt.Fprintf(&b, "Universe: all assets except %s, min volume $%s\n",
			strings.Join(cfg.Hyperliquid.Excluded, ", "), humanize.Commaf(rules.MinVolume))
	}
	fmt.Fprintf(&b, "Interval: %v", cfg.Hyperliquid.PollInterval)
	return b.String()
}
