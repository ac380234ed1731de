// Package encoder synthesizes LED data-line waveforms. It is the inverse of
// the decoder and is used for simulation captures and tests.
package encoder

import (
	"errors"
	"fmt"
	"math/rand"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

var ErrHighSpeedUnsupported = errors.New("controller has no high-speed mode")

type Option func(*Encoder)

// WithHighSpeed drives the line with the high-speed bit timing.
func WithHighSpeed(on bool) Option {
	return func(e *Encoder) {
		if on {
			e.speed = timing.SpeedHigh
		} else {
			e.speed = timing.SpeedNormal
		}
	}
}

// WithJitter draws every phase duration at random from inside its window
// instead of using the nominal value.
func WithJitter(rng *rand.Rand) Option {
	return func(e *Encoder) { e.rng = rng }
}

// Encoder appends bits, frames and resets to a waveform. The line idles low.
type Encoder struct {
	profile profile.Profile
	rate    float64
	clock   *timing.Clock
	b       *channel.Builder
	speed   timing.Speed
	rng     *rand.Rand
}

func New(p profile.Profile, sampleRateHz float64, opts ...Option) (*Encoder, error) {
	if sampleRateHz <= 0 {
		return nil, fmt.Errorf("encoder: sample rate %v", sampleRateHz)
	}
	e := &Encoder{
		profile: p,
		rate:    sampleRateHz,
		clock:   timing.NewClock(sampleRateHz),
		b:       channel.NewBuilder(channel.Low),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.speed == timing.SpeedHigh && !p.HighSpeedSupported() {
		return nil, fmt.Errorf("%w: %s", ErrHighSpeedUnsupported, p.Name())
	}
	return e, nil
}

// SetHighSpeed switches timing sets for the bits that follow.
func (e *Encoder) SetHighSpeed(on bool) error {
	if on && !e.profile.HighSpeedSupported() {
		return fmt.Errorf("%w: %s", ErrHighSpeedUnsupported, e.profile.Name())
	}
	WithHighSpeed(on)(e)
	return nil
}

func (e *Encoder) Profile() profile.Profile { return e.profile }
func (e *Encoder) Position() int64          { return e.b.Position() }

// pick returns the duration to emit for w. Jittered values keep one sample
// clear of each bound so quantization cannot push them outside.
func (e *Encoder) pick(w timing.Window) float64 {
	if e.rng == nil {
		return w.Nominal
	}
	margin := 1 / e.rate
	lo, hi := w.Min+margin, w.Max-margin
	if w.Unbounded() {
		hi = w.Nominal + (w.Nominal - w.Min)
	}
	if hi <= lo {
		return w.Nominal
	}
	return lo + e.rng.Float64()*(hi-lo)
}

func (e *Encoder) hold(seconds float64) {
	e.b.Advance(e.clock.Advance(seconds))
}

// WriteReset drives the line low for a reset period. Directly after a bit the
// reset extends that bit's low phase.
func (e *Encoder) WriteReset() {
	e.b.TransitionTo(channel.Low)
	e.hold(e.pick(e.profile.ResetWindow()))
}

// WritePulse emits an arbitrary high/low pair, for building malformed input.
func (e *Encoder) WritePulse(highSec, lowSec float64) {
	e.b.TransitionTo(channel.High)
	e.hold(highSec)
	e.b.Transition()
	e.hold(lowSec)
}

func (e *Encoder) WriteBit(bit uint8) {
	bt := e.profile.Lookup(bit&1, e.speed)
	e.WritePulse(e.pick(bt.High), e.pick(bt.Low))
}

// WriteWord emits the low BitsPerChannel bits of v in the profile's shift
// order.
func (e *Encoder) WriteWord(v uint16) {
	n := e.profile.BitsPerChannel()
	for i := uint8(0); i < n; i++ {
		var bit uint8
		if e.profile.ShiftOrder() == profile.LSBFirst {
			bit = uint8(v>>i) & 1
		} else {
			bit = uint8(v>>(n-1-i)) & 1
		}
		e.WriteBit(bit)
	}
}

// WriteFrame emits one LED worth of data. Controllers with more than three
// channels cycle through colors to fill every triple.
func (e *Encoder) WriteFrame(colors ...profile.RGB) {
	if len(colors) == 0 {
		colors = []profile.RGB{{}}
	}
	triples := int(e.profile.ChannelCount()) / 3
	fill := make([]profile.RGB, triples)
	for i := range fill {
		fill[i] = colors[i%len(colors)]
	}
	for _, w := range profile.FromCanonical(e.profile.ColorLayout(), fill) {
		e.WriteWord(w)
	}
}

// WritePacket emits one frame per color followed by a reset.
func (e *Encoder) WritePacket(colors ...profile.RGB) {
	for _, c := range colors {
		e.WriteFrame(c)
	}
	e.WriteReset()
}

// WriteHex is WritePacket for "#rrggbb" strings. 12-bit controllers get the
// value scaled up to their width.
func (e *Encoder) WriteHex(colors ...string) error {
	parsed := make([]profile.RGB, 0, len(colors))
	shift := e.profile.BitsPerChannel() - 8
	for _, s := range colors {
		c, err := profile.ParseHex(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, profile.RGB{R: c.R << shift, G: c.G << shift, B: c.B << shift})
	}
	e.WritePacket(parsed...)
	return nil
}

// Finish closes the final low phase with a rising edge and returns the
// waveform.
func (e *Encoder) Finish() *channel.Buffer {
	if e.b.Level() == channel.Low && e.b.Position() > 0 {
		e.b.Transition()
		e.b.Advance(1)
	}
	return e.b.Buffer()
}
