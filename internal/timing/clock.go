package timing

import "math"

// Clock converts durations to sample counts while carrying the fractional
// remainder forward, so a long run of pulses does not drift from the ideal
// timeline.
type Clock struct {
	rate float64
	err  float64
}

func NewClock(sampleRateHz float64) *Clock {
	return &Clock{rate: sampleRateHz}
}

// Advance returns the number of whole samples covering seconds, including the
// error carried from earlier calls.
func (c *Clock) Advance(seconds float64) int64 {
	target := seconds*c.rate + c.err
	n := math.Floor(target + roundingSlack)
	c.err = target - n
	if c.err < 0 {
		c.err = 0
	}
	return int64(n)
}

// Carry is the fractional sample currently owed to the next Advance.
func (c *Clock) Carry() float64 {
	return c.err
}

func (c *Clock) Reset() {
	c.err = 0
}

func (c *Clock) SampleRate() float64 {
	return c.rate
}
