package encoder

import (
	"fmt"
	"math/rand"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/profile"
)

const (
	DefaultFramesPerPacket = 6
	minSimulationRateHz    = 12_000_000
)

type SimulationOptions struct {
	Controller      profile.Controller
	SampleRateHz    float64
	Packets         int
	FramesPerPacket int
	Seed            int64
	HighSpeed       bool
	Jitter          bool
}

// Simulation is a generated capture and the colors encoded in it, one slice
// per packet.
type Simulation struct {
	Buffer  *channel.Buffer
	Packets [][]profile.RGB
}

// Simulate produces a deterministic capture of random colors. The capture
// opens with a reset so every packet is decodable.
func Simulate(opts SimulationOptions) (*Simulation, error) {
	if opts.SampleRateHz < minSimulationRateHz {
		return nil, fmt.Errorf("simulation needs at least %d Hz, got %.0f", minSimulationRateHz, opts.SampleRateHz)
	}
	if opts.Packets <= 0 {
		opts.Packets = 1
	}
	if opts.FramesPerPacket <= 0 {
		opts.FramesPerPacket = DefaultFramesPerPacket
	}
	p := profile.Get(opts.Controller)
	rng := rand.New(rand.NewSource(opts.Seed))
	encOpts := []Option{WithHighSpeed(opts.HighSpeed)}
	if opts.Jitter {
		encOpts = append(encOpts, WithJitter(rand.New(rand.NewSource(opts.Seed+1))))
	}
	enc, err := New(p, opts.SampleRateHz, encOpts...)
	if err != nil {
		return nil, err
	}
	limit := int(p.MaxChannelValue()) + 1
	sim := &Simulation{}
	enc.WriteReset()
	for i := 0; i < opts.Packets; i++ {
		colors := make([]profile.RGB, opts.FramesPerPacket)
		for j := range colors {
			colors[j] = profile.RGB{
				R: uint16(rng.Intn(limit)),
				G: uint16(rng.Intn(limit)),
				B: uint16(rng.Intn(limit)),
			}
		}
		enc.WritePacket(colors...)
		sim.Packets = append(sim.Packets, colors)
	}
	sim.Buffer = enc.Finish()
	return sim, nil
}
