// Package metrics exposes Prometheus counters for detection cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements monitor.Metrics and the cycle/delivery hooks using
// Prometheus. Each Recorder owns its registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	candidates    prometheus.Counter
	volumeGate    prometheus.Counter
	signals       *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	tracked       prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spikewatch_cycles_total",
				Help: "Detection cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spikewatch_cycle_duration_seconds",
			Help:    "Duration of detection cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spikewatch_candidates_total",
			Help: "Assets evaluated by the volume stage",
		}),
		volumeGate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spikewatch_volume_gate_passed_total",
			Help: "Assets whose volume cleared the sigma and Z thresholds",
		}),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spikewatch_signals_total",
				Help: "Signals emitted per asset",
			},
			[]string{"asset"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spikewatch_analysis_errors_total",
				Help: "Per-asset analysis failures by kind",
			},
			[]string{"kind"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spikewatch_deliveries_total",
				Help: "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spikewatch_tracked_assets",
			Help: "Assets with volume history",
		}),
	}

	r.registry.MustRegister(
		r.cycles, r.cycleDuration, r.candidates, r.volumeGate,
		r.signals, r.errorsTotal, r.deliveries, r.tracked,
	)
	return r
}

func (r *Recorder) CandidateEvaluated() { r.candidates.Inc() }
func (r *Recorder) VolumeGatePassed()   { r.volumeGate.Inc() }

func (r *Recorder) SignalEmitted(asset string) {
	r.signals.WithLabelValues(asset).Inc()
}

func (r *Recorder) AnalysisError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) TrackedAssets(n int) {
	r.tracked.Set(float64(n))
}

// RecordCycle records a finished cycle.
func (r *Recorder) RecordCycle(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// RecordDelivery records a notification attempt on channel.
func (r *Recorder) RecordDelivery(channel string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	r.deliveries.WithLabelValues(channel, outcome).Inc()
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
