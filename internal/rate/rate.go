// Package rate turns a time-ordered sequence of progress samples into a
// smoothed progress rate and an ETA. It is pure and safe to call on every
// update.
package rate

import "math"

// Sample is one (timestamp, progress) observation. Timestamps are unix
// milliseconds; progress is 0..100.
type Sample struct {
	At       int64
	Progress float64
}

// Estimate is the result of a rate computation.
type Estimate struct {
	// Known is false when there were not enough usable samples.
	Known bool
	// RatePerMs is progress units per millisecond. Zero when unknown.
	RatePerMs float64
	// EtaMs is the projected remaining milliseconds, -1 when unknown.
	EtaMs int64
	// Confidence is the inverse coefficient of variation of the recent
	// rates, clamped to [0,100]. Zero for the simple estimator.
	Confidence float64
}

// unknown is returned whenever a rate cannot be computed.
var unknown = Estimate{Known: false, EtaMs: -1}

// pairRates computes per-interval rates, skipping pairs with a non-positive
// progress or time delta so a rate can never be negative or divide by zero.
func pairRates(samples []Sample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	rates := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		dp := samples[i].Progress - samples[i-1].Progress
		dt := samples[i].At - samples[i-1].At
		if dp <= 0 || dt <= 0 {
			continue
		}
		rates = append(rates, dp/float64(dt))
	}
	return rates
}

func eta(ratePerMs, current float64) int64 {
	if ratePerMs <= 0 {
		return -1
	}
	remaining := 100 - current
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(remaining / ratePerMs))
}

// Simple estimates using the arithmetic mean of per-interval rates.
// It needs at least two samples with a positive progress delta.
func Simple(samples []Sample, current float64) Estimate {
	rates := pairRates(samples)
	if len(rates) == 0 {
		return unknown
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))
	if mean <= 0 {
		return unknown
	}
	return Estimate{Known: true, RatePerMs: mean, EtaMs: eta(mean, current)}
}

// Weighted estimates using a mean over the most recent window samples with
// linearly increasing weights toward the present, and grades stability of the
// recent rates as a confidence value. It needs at least three samples with
// positive progress deltas.
func Weighted(samples []Sample, window int, current float64) Estimate {
	if window > 1 && len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	rates := pairRates(samples)
	if len(rates) < 2 {
		return unknown
	}

	var weighted, weight float64
	for i, r := range rates {
		w := float64(i + 1)
		weighted += r * w
		weight += w
	}
	mean := weighted / weight
	if mean <= 0 {
		return unknown
	}

	// plain mean/stddev for the confidence grade
	var sum float64
	for _, r := range rates {
		sum += r
	}
	avg := sum / float64(len(rates))
	var variance float64
	for _, r := range rates {
		d := r - avg
		variance += d * d
	}
	variance /= float64(len(rates))
	stddev := math.Sqrt(variance)

	confidence := 100.0
	if stddev > 0 {
		confidence = avg / stddev
		if confidence > 100 {
			confidence = 100
		} else if confidence < 0 {
			confidence = 0
		}
	}

	return Estimate{Known: true, RatePerMs: mean, EtaMs: eta(mean, current), Confidence: confidence}
}
