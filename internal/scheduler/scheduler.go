// Package scheduler drives detection cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/rewired-gh/spikewatch/internal/universe"
)

var ErrEmptySnapshot = errors.New("snapshot returned no assets")

// Snapshotter lists every tradable asset with its current stats.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]models.Asset, error)
}

// Evaluator runs the two-stage analysis over a cycle's candidates.
type Evaluator interface {
	Evaluate(ctx context.Context, candidates []models.Asset, cycle int) []models.Signal
}

// Notifier reports cycle failures and recoveries out of band.
type Notifier interface {
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// Rotator trims persisted history after each cycle.
type Rotator interface {
	RotateSignals() error
}

// CycleRecorder observes cycle outcomes.
type CycleRecorder interface {
	RecordCycle(d time.Duration, err error)
}

// CycleSummary describes a completed cycle.
type CycleSummary struct {
	Cycle       int
	Fetched     int
	Candidates  int
	Signals     int
	Notified    int
	Duration    time.Duration
	CompletedAt time.Time
}

// Runner owns the cycle counter and the consecutive-failure state.
type Runner struct {
	source   Snapshotter
	engine   Evaluator
	rules    universe.Rules
	interval time.Duration

	notifier Notifier
	rotator  Rotator
	recorder CycleRecorder
	now      func() time.Time

	mu                  sync.Mutex
	cycle               int
	consecutiveFailures int
	last                *CycleSummary
}

type Option func(*Runner)

func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

func WithRotator(rot Rotator) Option {
	return func(r *Runner) { r.rotator = rot }
}

func WithRecorder(rec CycleRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a runner that polls source every interval.
func New(source Snapshotter, engine Evaluator, rules universe.Rules, interval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		source:   source,
		engine:   engine,
		rules:    rules,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle fetches a snapshot, filters it to candidates and evaluates them.
// A failed or empty snapshot fails the cycle.
func (r *Runner) RunCycle(ctx context.Context) (CycleSummary, error) {
	start := r.now()

	r.mu.Lock()
	r.cycle++
	cycle := r.cycle
	r.mu.Unlock()

	logger.Info("Starting monitoring cycle #%d", cycle)

	summary, err := r.runCycle(ctx, cycle)
	summary.Duration = r.now().Sub(start)
	if r.recorder != nil {
		r.recorder.RecordCycle(summary.Duration, err)
	}
	if err != nil {
		return summary, err
	}

	summary.CompletedAt = r.now()
	r.mu.Lock()
	r.last = &summary
	r.mu.Unlock()

	logger.Info("Cycle #%d completed in %v: %d assets, %d candidates, %d signals",
		cycle, summary.Duration, summary.Fetched, summary.Candidates, summary.Signals)
	return summary, nil
}

func (r *Runner) runCycle(ctx context.Context, cycle int) (CycleSummary, error) {
	summary := CycleSummary{Cycle: cycle}

	assets, err := r.source.Snapshot(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if len(assets) == 0 {
		return summary, ErrEmptySnapshot
	}
	summary.Fetched = len(assets)

	candidates := universe.Filter(assets, r.rules)
	summary.Candidates = len(candidates)
	logger.Debug("Analyzing %d of %d assets", len(candidates), len(assets))

	signals := r.engine.Evaluate(ctx, candidates, cycle)
	summary.Signals = len(signals)
	for _, s := range signals {
		if s.Notified {
			summary.Notified++
		}
	}
	return summary, nil
}

// Run executes an initial cycle and then one per interval until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	logger.Debug("Running initial monitoring cycle")
	r.handleCycleResult(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			r.handleCycleResult(ctx)
		}
	}
}

func (r *Runner) handleCycleResult(ctx context.Context) {
	_, err := r.RunCycle(ctx)

	r.mu.Lock()
	failures := r.consecutiveFailures
	if err != nil {
		r.consecutiveFailures++
	} else {
		r.consecutiveFailures = 0
	}
	r.mu.Unlock()

	if err != nil {
		logger.Error("Monitoring cycle failed: %v", err)
		if failures == 0 && r.notifier != nil {
			if sendErr := r.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
	} else if failures > 0 && r.notifier != nil {
		if sendErr := r.notifier.SendRecovery(failures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}

	if r.rotator != nil {
		if err := r.rotator.RotateSignals(); err != nil {
			logger.Warn("Failed to rotate signals: %v", err)
		}
	}
}

// ConsecutiveFailures returns the length of the current failure streak.
func (r *Runner) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveFailures
}

// LastSummary returns the most recent successful cycle, if any.
func (r *Runner) LastSummary() (CycleSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return CycleSummary{}, false
	}
	return *r.last, true
}

// Status renders the last cycle for the /status command.
func (r *Runner) Status() string {
	summary, ok := r.LastSummary()
	failures := r.ConsecutiveFailures()
	if !ok {
		if failures > 0 {
			return fmt.Sprintf("No cycle has completed yet (%d failed)", failures)
		}
		return "No cycle has completed yet"
	}

	status := fmt.Sprintf("Cycle #%d at %s: %d assets, %d candidates, %d signals (%d notified) in %v",
		summary.Cycle, summary.CompletedAt.UTC().Format("2006-01-02 15:04 UTC"),
		summary.Fetched, summary.Candidates, summary.Signals, summary.Notified,
		summary.Duration.Round(time.Millisecond))
	if failures > 0 {
		status += fmt.Sprintf("\n%d consecutive failures since", failures)
	}
	return status
}
