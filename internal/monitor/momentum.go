package monitor

import (
	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/rewired-gh/spikewatch/internal/rolling"
)

const emaHistorySize = 5

// MomentumStatistics tracks recent closes and computed EMAs per asset.
//
// Unlike volume, the price window is replaced on every update: each cycle
// re-fetches a fixed candle range and the window must mirror it exactly.
type MomentumStatistics struct {
	prices  *rolling.Series[string, float64]
	emas    *rolling.Series[string, float64]
	periods int
}

func NewMomentumStatistics(emaPeriods, slack, maxAssets int) *MomentumStatistics {
	return &MomentumStatistics{
		prices:  rolling.NewSeries[string, float64](emaPeriods+slack, maxAssets),
		emas:    rolling.NewSeries[string, float64](emaHistorySize, maxAssets),
		periods: emaPeriods,
	}
}

// Update replaces the asset's price window with the candles' closes in
// timestamp order. An empty candle list leaves the window untouched.
func (m *MomentumStatistics) Update(asset string, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	models.SortCandles(sorted)

	closes := make([]float64, len(sorted))
	for i, c := range sorted {
		closes[i] = c.Close
	}
	m.prices.Replace(asset, closes)
}

func (m *MomentumStatistics) HasSufficientData(asset string) bool {
	return m.prices.Len(asset) > 0
}

// Calculate computes the EMA (SMA when history is short) over the price
// window and records it for slope detection.
func (m *MomentumStatistics) Calculate(asset string) (models.MomentumStats, bool) {
	prices := m.prices.Snapshot(asset)
	if len(prices) == 0 {
		return models.MomentumStats{}, false
	}
	current := prices[len(prices)-1]

	method := models.MethodSMA
	if len(prices) >= m.periods {
		method = models.MethodEMA
	}
	ema := EMA(prices, m.periods)

	m.emas.Append(asset, ema)

	return models.MomentumStats{
		CurrentPrice:  current,
		EMAValue:      ema,
		PriceAboveEMA: current > ema,
		EMASlope:      slopeOf(m.emas.Snapshot(asset)),
		Method:        method,
		PeriodsUsed:   len(prices),
	}, true
}

// slopeOf reports SlopeUp when the last three values strictly increase.
func slopeOf(emas []float64) models.Slope {
	n := len(emas)
	if n < 3 {
		return models.SlopeUnknown
	}
	if emas[n-3] < emas[n-2] && emas[n-2] < emas[n-1] {
		return models.SlopeUp
	}
	return models.SlopeNotUp
}
