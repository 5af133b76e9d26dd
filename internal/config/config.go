package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/spikewatch/internal/monitor"
	"github.com/rewired-gh/spikewatch/internal/universe"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Universe    UniverseConfig    `mapstructure:"universe"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// HyperliquidConfig holds market data API configuration
type HyperliquidConfig struct {
	APIURL              string        `mapstructure:"api_url"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	RateLimitRPS        float64       `mapstructure:"rate_limit_rps"`
	Excluded            []string      `mapstructure:"excluded"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// DetectorConfig holds spike and momentum detection parameters
type DetectorConfig struct {
	SigmaThreshold        float64 `mapstructure:"sigma_threshold"`
	ZScoreThreshold       float64 `mapstructure:"zscore_threshold"`
	VolumePeriods         int     `mapstructure:"volume_periods"`
	MinPeriods            int     `mapstructure:"min_periods"`
	EMAPeriods            int     `mapstructure:"ema_periods"`
	CandleSlack           int     `mapstructure:"candle_slack"`
	PriceAboveEMARequired bool    `mapstructure:"price_above_ema_required"`
	EMASlopeFilterEnabled bool    `mapstructure:"ema_slope_filter_enabled"`
	MaxAssets             int     `mapstructure:"max_assets"`
}

// UniverseConfig controls which assets are analysed
type UniverseConfig struct {
	StrictListEnabled bool    `mapstructure:"strict_list_enabled"`
	StrictListPath    string  `mapstructure:"strict_list_path"`
	MinVolume         float64 `mapstructure:"min_volume"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the signal journal configuration
type StorageConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DBPath     string `mapstructure:"db_path"`
	MaxSignals int    `mapstructure:"max_signals"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, a .env file in the
// working directory and SPIKEWATCH_* environment variables.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPIKEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("hyperliquid.api_url", "https://api.hyperliquid.xyz")
	v.SetDefault("hyperliquid.poll_interval", "15m")
	v.SetDefault("hyperliquid.timeout", "30s")
	v.SetDefault("hyperliquid.max_retries", 3)
	v.SetDefault("hyperliquid.retry_delay_base", "1s")
	v.SetDefault("hyperliquid.rate_limit_rps", 20.0)
	v.SetDefault("hyperliquid.excluded", []string{"BTC", "ETH"})
	v.SetDefault("hyperliquid.max_idle_conns", 100)
	v.SetDefault("hyperliquid.max_idle_conns_per_host", 10)
	v.SetDefault("hyperliquid.idle_conn_timeout", "90s")

	d := monitor.DefaultConfig()
	v.SetDefault("detector.sigma_threshold", d.SigmaThreshold)
	v.SetDefault("detector.zscore_threshold", d.ZScoreThreshold)
	v.SetDefault("detector.volume_periods", d.VolumePeriods)
	v.SetDefault("detector.min_periods", d.MinPeriods)
	v.SetDefault("detector.ema_periods", d.EMAPeriods)
	v.SetDefault("detector.candle_slack", d.CandleSlack)
	v.SetDefault("detector.price_above_ema_required", d.PriceAboveEMARequired)
	v.SetDefault("detector.ema_slope_filter_enabled", d.EMASlopeFilterEnabled)
	v.SetDefault("detector.max_assets", 500)

	v.SetDefault("universe.strict_list_enabled", true)
	v.SetDefault("universe.strict_list_path", "strict_list.json")
	v.SetDefault("universe.min_volume", 1000.0)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/signals.db")
	v.SetDefault("storage.max_signals", 10000)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Hyperliquid.APIURL == "" {
		return fmt.Errorf("hyperliquid.api_url is required")
	}
	if c.Hyperliquid.PollInterval < 1*time.Minute {
		return fmt.Errorf("hyperliquid.poll_interval must be at least 1 minute")
	}
	if c.Hyperliquid.Timeout <= 0 {
		return fmt.Errorf("hyperliquid.timeout must be positive")
	}
	if c.Hyperliquid.MaxRetries < 0 {
		return fmt.Errorf("hyperliquid.max_retries must not be negative")
	}
	if c.Hyperliquid.RateLimitRPS < 0 {
		return fmt.Errorf("hyperliquid.rate_limit_rps must not be negative")
	}

	if c.Detector.SigmaThreshold <= 0 {
		return fmt.Errorf("detector.sigma_threshold must be positive")
	}
	if c.Detector.ZScoreThreshold <= 0 {
		return fmt.Errorf("detector.zscore_threshold must be positive")
	}
	if c.Detector.MinPeriods < 1 {
		return fmt.Errorf("detector.min_periods must be at least 1")
	}
	if c.Detector.VolumePeriods < 2 || c.Detector.VolumePeriods < c.Detector.MinPeriods {
		return fmt.Errorf("detector.volume_periods must be at least 2 and not less than detector.min_periods")
	}
	if c.Detector.EMAPeriods < 1 {
		return fmt.Errorf("detector.ema_periods must be at least 1")
	}
	if c.Detector.CandleSlack < 0 {
		return fmt.Errorf("detector.candle_slack must not be negative")
	}
	if c.Detector.MaxAssets < 0 {
		return fmt.Errorf("detector.max_assets must not be negative")
	}

	if c.Universe.MinVolume < 0 {
		return fmt.Errorf("universe.min_volume must not be negative")
	}
	if c.Universe.StrictListEnabled && c.Universe.StrictListPath == "" {
		return fmt.Errorf("universe.strict_list_path is required when the strict list is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.Enabled {
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required when storage is enabled")
		}
		if c.Storage.MaxSignals < 1 {
			return fmt.Errorf("storage.max_signals must be at least 1")
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// MonitorConfig maps the detector section onto the engine configuration.
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		SigmaThreshold:        c.Detector.SigmaThreshold,
		ZScoreThreshold:       c.Detector.ZScoreThreshold,
		VolumePeriods:         c.Detector.VolumePeriods,
		MinPeriods:            c.Detector.MinPeriods,
		EMAPeriods:            c.Detector.EMAPeriods,
		CandleSlack:           c.Detector.CandleSlack,
		PriceAboveEMARequired: c.Detector.PriceAboveEMARequired,
		EMASlopeFilterEnabled: c.Detector.EMASlopeFilterEnabled,
		MaxAssets:             c.Detector.MaxAssets,
	}
}

// UniverseRules loads the strict list (when enabled) and returns the
// candidate filter rules.
func (c *Config) UniverseRules() universe.Rules {
	rules := universe.Rules{
		StrictListEnabled: c.Universe.StrictListEnabled,
		MinVolume:         c.Universe.MinVolume,
	}
	if rules.StrictListEnabled {
		rules.StrictList = universe.LoadStrictList(c.Universe.StrictListPath)
	}
	return rules
}
