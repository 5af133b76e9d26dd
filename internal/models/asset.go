// Package models defines the core domain entities: assets, candles, computed
// statistics and emitted signals.
package models

import (
	"errors"
	"math"
	"sort"
)

// Asset is one entry of a market snapshot: a perpetual with its rolling 24h
// notional volume and current mark price.
type Asset struct {
	Name      string  `json:"name"`
	Volume24h float64 `json:"volume_24h"`
	Price     float64 `json:"price"`
}

// Validate checks asset field constraints.
func (a *Asset) Validate() error {
	if a.Name == "" {
		return errors.New("asset name must not be empty")
	}
	if !isFinite(a.Volume24h) || !isFinite(a.Price) {
		return errors.New("volume and price must be finite")
	}
	if a.Volume24h < 0 {
		return errors.New("volume 24h must not be negative")
	}
	if a.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}

// Candle is a single OHLCV bar. Timestamp is the bar open time in Unix
// milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// SortCandles orders candles by timestamp ascending, keeping the relative
// order of equal timestamps.
func SortCandles(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
