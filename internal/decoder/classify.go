package decoder

import (
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

// Symbol is the value carried by one high/low pulse pair.
type Symbol uint8

const (
	SymbolInvalid Symbol = iota
	SymbolZero
	SymbolOne
)

func (s Symbol) String() string {
	switch s {
	case SymbolZero:
		return "0"
	case SymbolOne:
		return "1"
	default:
		return "invalid"
	}
}

// Fault says which phase of an invalid pulse pair was out of tolerance.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultHigh
	FaultLow
)

func (f Fault) String() string {
	switch f {
	case FaultHigh:
		return "high phase out of tolerance"
	case FaultLow:
		return "low phase does not match high phase"
	default:
		return "none"
	}
}

// Classification is the outcome of classifying one pulse pair. A pair whose
// low phase reaches the reset window keeps its bit value and sets Reset.
type Classification struct {
	Symbol Symbol
	Reset  bool
	Speed  timing.Speed
	Timing timing.BitTiming
	Fault  Fault
}

func (c Classification) Valid() bool {
	return c.Symbol != SymbolInvalid
}

// Bit is 0 or 1 for a valid classification.
func (c Classification) Bit() uint8 {
	if c.Symbol == SymbolOne {
		return 1
	}
	return 0
}

// Classifier matches measured pulse durations against a profile's windows.
type Classifier struct {
	profile   profile.Profile
	eps       float64
	allowHigh bool
}

func NewClassifier(p profile.Profile, sampleRateHz float64, allowHighSpeed bool) *Classifier {
	return &Classifier{
		profile:   p,
		eps:       timing.HalfSample(sampleRateHz),
		allowHigh: allowHighSpeed && p.HighSpeedSupported(),
	}
}

func (c *Classifier) speeds(prefer timing.Speed) []timing.Speed {
	switch {
	case !c.allowHigh:
		return []timing.Speed{timing.SpeedNormal}
	case prefer == timing.SpeedHigh:
		return []timing.Speed{timing.SpeedHigh, timing.SpeedNormal}
	default:
		return []timing.Speed{timing.SpeedNormal, timing.SpeedHigh}
	}
}

// IsReset reports whether a low phase is long enough to latch the LEDs.
func (c *Classifier) IsReset(lowSec float64) bool {
	return c.profile.ResetWindow().AtLeastMin(lowSec, c.eps)
}

// Classify picks the first candidate whose high window holds highSec, trying
// the preferred speed first, then requires lowSec to fit that same
// candidate's low window unless it is long enough to be a reset.
func (c *Classifier) Classify(highSec, lowSec float64, prefer timing.Speed) Classification {
	for _, speed := range c.speeds(prefer) {
		for b := uint8(0); b < 2; b++ {
			bt := c.profile.Lookup(b, speed)
			if !bt.High.Contains(highSec, c.eps) {
				continue
			}
			sym := SymbolZero
			if b == 1 {
				sym = SymbolOne
			}
			out := Classification{Symbol: sym, Speed: speed, Timing: bt}
			if c.IsReset(lowSec) {
				out.Reset = true
				return out
			}
			if !bt.Low.Contains(lowSec, c.eps) {
				out.Symbol = SymbolInvalid
				out.Fault = FaultLow
			}
			return out
		}
	}
	return Classification{Symbol: SymbolInvalid, Fault: FaultHigh}
}
