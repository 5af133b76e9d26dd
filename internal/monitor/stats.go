package monitor

import (
	"math"
)

// welford accumulates mean and sum of squared deviations in one pass.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// populationStd divides by count, not count-1.
func (w *welford) populationStd() float64 {
	if w.count == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

// MeanStd returns the arithmetic mean and population standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	var w welford
	for _, x := range xs {
		w.add(x)
	}
	return w.mean, w.populationStd()
}

// SMA returns the simple mean of prices, or 0 for an empty slice.
func SMA(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}

// EMA seeds with the SMA of the first periods prices, then applies
// ema = alpha*price + (1-alpha)*ema for the rest with alpha = 2/(periods+1).
// With fewer than periods prices it falls back to SMA.
func EMA(prices []float64, periods int) float64 {
	if periods < 1 || len(prices) < periods {
		return SMA(prices)
	}
	alpha := 2.0 / float64(periods+1)
	ema := SMA(prices[:periods])
	for _, p := range prices[periods:] {
		ema = alpha*p + (1-alpha)*ema
	}
	return ema
}
