package models

import (
	"time"
)

// AverageMethod names the moving average a MomentumStats value was computed with.
type AverageMethod string

const (
	MethodEMA AverageMethod = "EMA"
	MethodSMA AverageMethod = "SMA"
)

// Slope is the direction of the recent EMA history.
type Slope int

const (
	// SlopeUnknown means fewer than three EMA values have been recorded.
	SlopeUnknown Slope = iota
	SlopeUp
	// SlopeNotUp covers flat and falling EMA triples.
	SlopeNotUp
)

func (s Slope) String() string {
	switch s {
	case SlopeUp:
		return "up"
	case SlopeNotUp:
		return "not_up"
	default:
		return "unknown"
	}
}

// VolumeStats measures the latest volume reading against its rolling baseline.
// SigmaDeviation and ZScore are the same quantity; both are kept because
// alerts label them separately.
type VolumeStats struct {
	SigmaDeviation  float64
	ZScore          float64
	MeanVolume      float64
	CurrentVolume   float64
	PeriodsAnalyzed int
}

// MomentumStats describes price position and trend relative to the EMA.
type MomentumStats struct {
	CurrentPrice  float64
	EMAValue      float64
	PriceAboveEMA bool
	EMASlope      Slope
	Method        AverageMethod
	PeriodsUsed   int
}

// Signal is emitted once per cycle for an asset that passed every enabled gate.
type Signal struct {
	ID    string
	Cycle int

	Asset    Asset
	Volume   VolumeStats
	Momentum MomentumStats

	DetectedAt time.Time
	Notified   bool
}

// Conditions lists the momentum confirmations that held for the signal.
func (s *Signal) Conditions(priceAboveRequired, slopeFilterEnabled bool) []string {
	var out []string
	if priceAboveRequired && s.Momentum.PriceAboveEMA {
		out = append(out, "Price > EMA")
	}
	if slopeFilterEnabled && s.Momentum.EMASlope == SlopeUp {
		out = append(out, "EMA Rising")
	}
	return out
}
