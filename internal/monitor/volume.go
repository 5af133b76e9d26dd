package monitor

import (
	"math"

	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/rewired-gh/spikewatch/internal/rolling"
)

// VolumeStatistics keeps a rolling window of 24h volume readings per asset and
// scores the latest reading against it.
type VolumeStatistics struct {
	history    *rolling.Series[string, float64]
	periods    int
	minPeriods int
}

func NewVolumeStatistics(periods, minPeriods, maxAssets int) *VolumeStatistics {
	return &VolumeStatistics{
		history:    rolling.NewSeries[string, float64](periods, maxAssets),
		periods:    periods,
		minPeriods: minPeriods,
	}
}

// Update appends a volume reading to the asset's window.
func (v *VolumeStatistics) Update(asset string, volume float64) {
	v.history.Append(asset, volume)
}

func (v *VolumeStatistics) HasSufficientData(asset string) bool {
	return v.history.Len(asset) >= v.minPeriods
}

// Calculate scores currentVolume against the asset's baseline. Once the
// window is full the newest element is left out of the baseline so a spike
// cannot dampen its own score. ok is false for an empty, flat or non-finite
// baseline.
func (v *VolumeStatistics) Calculate(asset string, currentVolume float64) (models.VolumeStats, bool) {
	baseline := v.history.Snapshot(asset)
	if len(baseline) == v.periods {
		baseline = baseline[:len(baseline)-1]
	}
	if len(baseline) == 0 {
		return models.VolumeStats{}, false
	}

	mean, std := MeanStd(baseline)
	if !(std > 0) || math.IsInf(std, 0) {
		return models.VolumeStats{}, false
	}

	sigma := (currentVolume - mean) / std
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return models.VolumeStats{}, false
	}
	return models.VolumeStats{
		SigmaDeviation:  sigma,
		ZScore:          sigma,
		MeanVolume:      mean,
		CurrentVolume:   currentVolume,
		PeriodsAnalyzed: len(baseline),
	}, true
}

// Tracked returns the number of assets with a volume window.
func (v *VolumeStatistics) Tracked() int {
	return v.history.Keys()
}
