// Package alert delivers signals to Telegram with a console fallback.
package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/models"
)

// TextSender is the primary delivery channel.
type TextSender interface {
	SendText(text string) error
}

// Journal records delivered signals.
type Journal interface {
	AddSignal(signal *models.Signal) error
}

// DeliveryRecorder observes delivery outcomes per channel.
type DeliveryRecorder interface {
	RecordDelivery(channel string, ok bool)
}

// Dispatcher implements monitor.NotificationSink.
type Dispatcher struct {
	sender     TextSender
	console    io.Writer
	journal    Journal
	recorder   DeliveryRecorder
	emaPeriods int
}

type Option func(*Dispatcher)

// WithSender enables Telegram (or any TextSender) as the primary channel.
func WithSender(s TextSender) Option {
	return func(d *Dispatcher) { d.sender = s }
}

func WithConsole(w io.Writer) Option {
	return func(d *Dispatcher) { d.console = w }
}

func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

func WithRecorder(r DeliveryRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher that prints to stdout unless a sender
// is configured. emaPeriods labels the moving average in messages.
func NewDispatcher(emaPeriods int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		console:    os.Stdout,
		emaPeriods: emaPeriods,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PrimaryAvailable reports whether a sender other than the console is set.
func (d *Dispatcher) PrimaryAvailable() bool {
	return d.sender != nil
}

// Deliver sends the signal on the primary channel, falling back to the
// console. It returns false only when the primary channel failed.
func (d *Dispatcher) Deliver(_ context.Context, signal models.Signal) bool {
	message := Format(signal, d.emaPeriods)

	delivered := true
	if d.sender != nil {
		if err := d.sender.SendText(message); err != nil {
			logger.Error("Telegram send failed for %s: %v", signal.Asset.Name, err)
			d.record("telegram", false)
			d.printConsole(message)
			delivered = false
		} else {
			d.record("telegram", true)
		}
	} else {
		d.printConsole(message)
	}

	if d.journal != nil {
		signal.Notified = delivered
		if err := d.journal.AddSignal(&signal); err != nil {
			logger.Warn("Failed to record signal for %s: %v", signal.Asset.Name, err)
		}
	}
	return delivered
}

func (d *Dispatcher) record(channel string, ok bool) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(channel, ok)
	}
}

func (d *Dispatcher) printConsole(message string) {
	_, err := fmt.Fprintf(d.console, "\n%s\n%s\n", message, strings.Repeat("=", 50))
	d.record("console", err == nil)
}

// Format renders a signal as a plain-text alert.
func Format(signal models.Signal, emaPeriods int) string {
	var b strings.Builder

	b.WriteString("🚨 VOLUME SPIKE + MOMENTUM DETECTED\n")
	fmt.Fprintf(&b, "Token: $%s\n", signal.Asset.Name)

	fmt.Fprintf(&b, "Volume: $%s\n", humanize.Comma(int64(signal.Asset.Volume24h+0.5)))
	fmt.Fprintf(&b, "Sigma Dev: %.2f\n", signal.Volume.SigmaDeviation)
	fmt.Fprintf(&b, "Z-Score: %.2f\n", signal.Volume.ZScore)

	fmt.Fprintf(&b, "Price: $%.4f\n", signal.Momentum.CurrentPrice)
	fmt.Fprintf(&b, "%s-%d: $%.4f\n", signal.Momentum.Method, emaPeriods, signal.Momentum.EMAValue)

	if signal.Momentum.PriceAboveEMA {
		b.WriteString("Momentum: ✅ Above EMA\n")
	} else {
		b.WriteString("Momentum: ❌ Below EMA\n")
	}
	if signal.Momentum.EMASlope == models.SlopeUp {
		b.WriteString("Trend: ✅ EMA Rising\n")
	} else {
		b.WriteString("Trend: ❓ EMA Slope Unknown/Flat/Down\n")
	}

	fmt.Fprintf(&b, "Analysis: %d vol periods, %d price periods",
		signal.Volume.PeriodsAnalyzed, signal.Momentum.PeriodsUsed)
	return b.String()
}
