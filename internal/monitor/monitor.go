package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/models"
)

type Config struct {
	SigmaThreshold        float64
	ZScoreThreshold       float64
	VolumePeriods         int
	MinPeriods            int
	EMAPeriods            int
	CandleSlack           int
	PriceAboveEMARequired bool
	EMASlopeFilterEnabled bool
	// MaxAssets bounds the number of per-asset windows; 0 means unbounded.
	MaxAssets int
}

func DefaultConfig() Config {
	return Config{
		SigmaThreshold:        2.0,
		ZScoreThreshold:       2.0,
		VolumePeriods:         20,
		MinPeriods:            5,
		EMAPeriods:            21,
		CandleSlack:           5,
		PriceAboveEMARequired: true,
		EMASlopeFilterEnabled: true,
	}
}

// CandleCount is the number of hourly bars requested for momentum analysis.
func (c Config) CandleCount() int {
	return c.EMAPeriods + c.CandleSlack
}

// MarketDataSource supplies asset snapshots and hourly candles.
type MarketDataSource interface {
	Snapshot(ctx context.Context) ([]models.Asset, error)
	Candles(ctx context.Context, asset string, count int) ([]models.Candle, error)
}

// NotificationSink delivers a signal on a best-effort basis and reports
// whether the primary channel accepted it.
type NotificationSink interface {
	Deliver(ctx context.Context, signal models.Signal) bool
}

// Metrics receives per-candidate counters from the engine.
type Metrics interface {
	CandidateEvaluated()
	VolumeGatePassed()
	SignalEmitted(asset string)
	AnalysisError(kind string)
	TrackedAssets(n int)
}

type nopMetrics struct{}

func (nopMetrics) CandidateEvaluated()  {}
func (nopMetrics) VolumeGatePassed()    {}
func (nopMetrics) SignalEmitted(string) {}
func (nopMetrics) AnalysisError(string) {}
func (nopMetrics) TrackedAssets(int)    {}

const progressEvery = 25

// Engine runs the two-stage volume/momentum detection over a cycle's
// candidates. All history lives in the two analyzers.
type Engine struct {
	volume   *VolumeStatistics
	momentum *MomentumStatistics
	source   MarketDataSource
	sink     NotificationSink
	metrics  Metrics
	config   Config
	now      func() time.Time
}

type Option func(*Engine)

func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(source MarketDataSource, sink NotificationSink, config Config, opts ...Option) *Engine {
	e := &Engine{
		volume:   NewVolumeStatistics(config.VolumePeriods, config.MinPeriods, config.MaxAssets),
		momentum: NewMomentumStatistics(config.EMAPeriods, config.CandleSlack, config.MaxAssets),
		source:   source,
		sink:     sink,
		metrics:  nopMetrics{},
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate processes candidates in order and returns the signals emitted this
// cycle. A failure on one candidate is logged and never stops the cycle.
func (e *Engine) Evaluate(ctx context.Context, candidates []models.Asset, cycle int) []models.Signal {
	var signals []models.Signal
	start := time.Now()

	for i, asset := range candidates {
		signal, emitted, err := e.evaluateCandidate(ctx, asset, cycle)
		if err != nil {
			logger.Warn("Error analyzing %s: %v", asset.Name, err)
		} else if emitted {
			signals = append(signals, signal)
		}

		if (i+1)%progressEvery == 0 {
			logger.Debug("Processed %d/%d assets (%.1fs elapsed)", i+1, len(candidates), time.Since(start).Seconds())
		}
	}

	e.metrics.TrackedAssets(e.volume.Tracked())
	return signals
}

func (e *Engine) evaluateCandidate(ctx context.Context, asset models.Asset, cycle int) (signal models.Signal, emitted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.AnalysisError("panic")
			signal, emitted, err = models.Signal{}, false, fmt.Errorf("analysis panicked: %v", r)
		}
	}()
	e.metrics.CandidateEvaluated()

	if err := asset.Validate(); err != nil {
		e.metrics.AnalysisError("invalid")
		return models.Signal{}, false, err
	}

	name := asset.Name
	e.volume.Update(name, asset.Volume24h)
	if !e.volume.HasSufficientData(name) {
		return models.Signal{}, false, nil
	}
	volStats, ok := e.volume.Calculate(name, asset.Volume24h)
	if !ok {
		return models.Signal{}, false, nil
	}

	if !(volStats.SigmaDeviation >= e.config.SigmaThreshold && volStats.ZScore >= e.config.ZScoreThreshold) {
		return models.Signal{}, false, nil
	}
	e.metrics.VolumeGatePassed()
	logger.Debug("Volume spike on %s: sigma=%.2f mean=%.0f current=%.0f", name, volStats.SigmaDeviation, volStats.MeanVolume, volStats.CurrentVolume)

	candles, err := e.source.Candles(ctx, name, e.config.CandleCount())
	if err != nil {
		e.metrics.AnalysisError("candles")
		logger.Warn("No candle data for %s, skipping momentum analysis: %v", name, err)
		return models.Signal{}, false, nil
	}
	if len(candles) == 0 {
		e.metrics.AnalysisError("candles")
		logger.Warn("No candle data for %s, skipping momentum analysis", name)
		return models.Signal{}, false, nil
	}

	e.momentum.Update(name, candles)
	if !e.momentum.HasSufficientData(name) {
		return models.Signal{}, false, nil
	}
	momStats, ok := e.momentum.Calculate(name)
	if !ok {
		return models.Signal{}, false, nil
	}

	if e.config.PriceAboveEMARequired && !momStats.PriceAboveEMA {
		return models.Signal{}, false, nil
	}
	// Only an explicit downward or flat slope rejects; unknown passes.
	if e.config.EMASlopeFilterEnabled && momStats.EMASlope == models.SlopeNotUp {
		return models.Signal{}, false, nil
	}

	signal = models.Signal{
		ID:         uuid.New().String(),
		Cycle:      cycle,
		Asset:      asset,
		Volume:     volStats,
		Momentum:   momStats,
		DetectedAt: e.now(),
	}
	logger.Info("%s: volume spike + momentum confirmed (conditions: %s)",
		name, strings.Join(signal.Conditions(e.config.PriceAboveEMARequired, e.config.EMASlopeFilterEnabled), ", "))

	signal.Notified = e.sink.Deliver(ctx, signal)
	e.metrics.SignalEmitted(name)
	return signal, true, nil
}

// TrackedAssets returns how many assets currently have volume history.
func (e *Engine) TrackedAssets() int {
	return e.volume.Tracked()
}
