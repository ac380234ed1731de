// Package timing holds the tolerance windows and sample clock shared by the
// LED encoder and decoder.
package timing

import (
	"fmt"
	"math"
)

// Window is a duration tolerance in seconds.
type Window struct {
	Min     float64
	Nominal float64
	Max     float64
}

// NS builds a Window from nanosecond values. A max of zero or less makes the
// window unbounded above, which is how reset windows are expressed.
func NS(min, nominal, max float64) Window {
	w := Window{Min: min * 1e-9, Nominal: nominal * 1e-9, Max: max * 1e-9}
	if max <= 0 {
		w.Max = math.Inf(1)
	}
	return w
}

// Contains reports whether d lies inside the window widened by eps on both
// sides.
func (w Window) Contains(d, eps float64) bool {
	return d >= w.Min-eps && d <= w.Max+eps
}

// AtLeastMin reports whether d reaches the lower bound less eps.
func (w Window) AtLeastMin(d, eps float64) bool {
	return d >= w.Min-eps
}

func (w Window) Unbounded() bool {
	return math.IsInf(w.Max, 1)
}

func (w Window) String() string {
	if w.Unbounded() {
		return fmt.Sprintf("[%s, %s, +inf)", formatSeconds(w.Min), formatSeconds(w.Nominal))
	}
	return fmt.Sprintf("[%s, %s, %s]", formatSeconds(w.Min), formatSeconds(w.Nominal), formatSeconds(w.Max))
}

// BitTiming is the pair of windows describing one encoded bit.
type BitTiming struct {
	High Window
	Low  Window
}

// Speed selects between the normal and high-speed timing sets.
type Speed uint8

const (
	SpeedNormal Speed = iota
	SpeedHigh
)

func (s Speed) String() string {
	if s == SpeedHigh {
		return "high"
	}
	return "normal"
}

// HalfSample is the tolerance epsilon applied to every window comparison.
func HalfSample(sampleRateHz float64) float64 {
	if sampleRateHz <= 0 {
		return 0
	}
	return 0.5 / sampleRateHz
}

// roundingSlack absorbs binary representation error so that 60us at 20MHz is
// 1200 samples and not 1199.
const roundingSlack = 1e-9

// Samples converts seconds to a whole number of samples, truncating.
func Samples(seconds, sampleRateHz float64) int64 {
	return int64(math.Floor(seconds*sampleRateHz + roundingSlack))
}

// Seconds converts a sample count to seconds.
func Seconds(samples int64, sampleRateHz float64) float64 {
	if sampleRateHz <= 0 {
		return 0
	}
	return float64(samples) / sampleRateHz
}

func formatSeconds(s float64) string {
	switch {
	case s >= 1e-3:
		return fmt.Sprintf("%.3gms", s*1e3)
	case s >= 1e-6:
		return fmt.Sprintf("%.4gus", s*1e6)
	default:
		return fmt.Sprintf("%.4gns", s*1e9)
	}
}
