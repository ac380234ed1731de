package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/encoder"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

func init() {
	common.ConfigureTests()
}

func hex(t *testing.T, s string) profile.RGB {
	t.Helper()
	c, err := profile.ParseHex(s)
	require.NoError(t, err)
	return c
}

func newEncoder(t *testing.T, c profile.Controller, rate float64, opts ...encoder.Option) *encoder.Encoder {
	t.Helper()
	enc, err := encoder.New(profile.Get(c), rate, opts...)
	require.NoError(t, err)
	return enc
}

func decodeAll(t *testing.T, buf *channel.Buffer, c profile.Controller, opts Options) (*Results, Summary) {
	t.Helper()
	res, sum, err := Decode(context.Background(), buf, profile.Get(c), opts)
	require.NoError(t, err)
	return res, sum
}

func colorsByPacket(res *Results) [][]profile.RGB {
	var out [][]profile.RGB
	for i := range res.Packets {
		var colors []profile.RGB
		for _, f := range res.PacketFrames(i) {
			colors = append(colors, f.Color())
		}
		out = append(out, colors)
	}
	return out
}

func TestWS2811Scenario(t *testing.T) {
	enc := newEncoder(t, profile.WS2811, 20e6)
	enc.WriteReset()
	require.NoError(t, enc.WriteHex("#aabbcc", "#223344", "#667788"))
	require.NoError(t, enc.WriteHex("#aabbcc", "#223344", "#667788"))
	buf := enc.Finish()

	res, sum := decodeAll(t, buf, profile.WS2811, Options{SampleRateHz: 20e6})
	require.Len(t, res.Frames, 6)
	require.Equal(t, []PacketRange{{First: 0, Last: 2}, {First: 3, Last: 5}}, res.Packets)
	assert.Equal(t, 2, res.Frames[2].Index)
	assert.Equal(t, profile.RGB{R: 0x66, G: 0x77, B: 0x88}.Pack(), res.Frames[2].Value())
	assert.Equal(t, 0, res.Frames[3].Index)
	assert.Equal(t, 1, res.Frames[3].Packet)
	assert.Equal(t, 6, sum.Frames)
	assert.Equal(t, 2, sum.Packets)
	assert.Zero(t, sum.Resyncs)
	assert.Zero(t, sum.Unterminated)
	assert.Equal(t, 6, res.Committed())

	for i := 1; i < len(res.Frames); i++ {
		assert.Greater(t, res.Frames[i].Start, res.Frames[i-1].End, "frame %d overlaps previous", i)
	}
	// Inside a packet a frame ends on the sample before the next one starts.
	assert.Equal(t, res.Frames[1].Start-1, res.Frames[0].End)
	// The last frame ends a nominal low phase after its final falling edge.
	// Both WS2811 bits last 2.5us, so 24 bits span 1200 samples at 20MHz.
	last := res.Frames[2]
	assert.Equal(t, int64(1200), last.End-last.Start)
}

func TestRoundTrip(t *testing.T) {
	rates := []float64{12e6, 20e6, 24e6, 50e6}
	for _, p := range profile.All() {
		for _, rate := range rates {
			for _, jitter := range []bool{false, true} {
				name := fmt.Sprintf("%s/%.0fMHz/jitter=%v", p.Controller().Slug(), rate/1e6, jitter)
				t.Run(name, func(t *testing.T) {
					sim, err := encoder.Simulate(encoder.SimulationOptions{
						Controller:   p.Controller(),
						SampleRateHz: rate,
						Packets:      3,
						Seed:         int64(p.Controller()) + 1,
						Jitter:       jitter,
					})
					require.NoError(t, err)
					res, sum := decodeAll(t, sim.Buffer, p.Controller(), Options{SampleRateHz: rate})
					if diff := cmp.Diff(sim.Packets, colorsByPacket(res)); diff != "" {
						t.Fatalf("decoded colors mismatch (-want +got):\n%s", diff)
					}
					assert.Zero(t, sum.Resyncs)
					assert.Zero(t, sum.PrematureResets)
				})
			}
		}
	}
}

func TestRoundTripNineChannels(t *testing.T) {
	enc := newEncoder(t, profile.TM1809, 20e6)
	enc.WriteReset()
	a, b, c := hex(t, "#102030"), hex(t, "#405060"), hex(t, "#708090")
	enc.WriteFrame(a, b, c)
	enc.WriteFrame(c)
	enc.WriteReset()
	res, _ := decodeAll(t, enc.Finish(), profile.TM1809, Options{SampleRateHz: 20e6})
	require.Len(t, res.Frames, 2)
	assert.Equal(t, []profile.RGB{a, b, c}, res.Frames[0].Colors)
	assert.Equal(t, []profile.RGB{c, c, c}, res.Frames[1].Colors)
}

func TestRoundTripTwelveBit(t *testing.T) {
	enc := newEncoder(t, profile.LPD1886_12, 20e6)
	enc.WriteReset()
	want := []profile.RGB{{R: 0xfff, G: 0x123, B: 0x800}, {R: 1, G: 2, B: 3}}
	enc.WritePacket(want...)
	res, _ := decodeAll(t, enc.Finish(), profile.LPD1886_12, Options{SampleRateHz: 20e6})
	require.Equal(t, [][]profile.RGB{want}, colorsByPacket(res))
	assert.Equal(t, "#ff1280", res.Frames[0].Color().Hex(12))
}

func TestToleranceBoundary(t *testing.T) {
	const rate = 20e6
	p := profile.Get(profile.WS2812B)
	cls := NewClassifier(p, rate, true)
	sample := 1 / rate
	zero, one := p.Lookup(0, timing.SpeedNormal), p.Lookup(1, timing.SpeedNormal)

	tests := []struct {
		name      string
		high, low float64
		want      Symbol
		fault     Fault
	}{
		{"zero high at min", zero.High.Min, zero.Low.Nominal, SymbolZero, FaultNone},
		{"zero high at max", zero.High.Max, zero.Low.Nominal, SymbolZero, FaultNone},
		{"zero high below min", zero.High.Min - sample, zero.Low.Nominal, SymbolInvalid, FaultHigh},
		{"zero high above max", zero.High.Max + sample, zero.Low.Nominal, SymbolInvalid, FaultHigh},
		{"one high at min", one.High.Min, one.Low.Nominal, SymbolOne, FaultNone},
		{"one high at max", one.High.Max, one.Low.Nominal, SymbolOne, FaultNone},
		{"one high above max", one.High.Max + sample, one.Low.Nominal, SymbolInvalid, FaultHigh},
		{"zero low at min", zero.High.Nominal, zero.Low.Min, SymbolZero, FaultNone},
		{"zero low at max", zero.High.Nominal, zero.Low.Max, SymbolZero, FaultNone},
		{"zero low below min", zero.High.Nominal, zero.Low.Min - sample, SymbolInvalid, FaultLow},
		{"zero low above max", zero.High.Nominal, zero.Low.Max + sample, SymbolInvalid, FaultLow},
		{"one low at max", one.High.Nominal, one.Low.Max, SymbolOne, FaultNone},
		{"one low above max", one.High.Nominal, one.Low.Max + sample, SymbolInvalid, FaultLow},
		{"one high with zero low", one.High.Nominal, zero.Low.Nominal, SymbolInvalid, FaultLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cls.Classify(tt.high, tt.low, timing.SpeedNormal)
			if got.Symbol != tt.want || got.Fault != tt.fault {
				t.Fatalf("Classify(%g, %g) = %v/%v, want %v/%v", tt.high, tt.low, got.Symbol, got.Fault, tt.want, tt.fault)
			}
			assert.False(t, got.Reset)
		})
	}
}

func TestClassifyReset(t *testing.T) {
	p := profile.Get(profile.WS2812B)
	cls := NewClassifier(p, 20e6, true)
	bt := p.Lookup(1, timing.SpeedNormal)
	got := cls.Classify(bt.High.Nominal, p.ResetWindow().Min, timing.SpeedNormal)
	assert.Equal(t, SymbolOne, got.Symbol)
	assert.True(t, got.Reset)
	got = cls.Classify(bt.High.Nominal, p.ResetWindow().Min-2/20e6, timing.SpeedNormal)
	assert.False(t, got.Valid())
}

func TestClassifySpeedPreference(t *testing.T) {
	p := profile.Get(profile.WS2811)
	cls := NewClassifier(p, 20e6, true)
	hs1 := p.Lookup(1, timing.SpeedHigh)
	n0 := p.Lookup(0, timing.SpeedNormal)
	for _, prefer := range []timing.Speed{timing.SpeedNormal, timing.SpeedHigh} {
		got := cls.Classify(hs1.High.Nominal, hs1.Low.Nominal, prefer)
		assert.Equal(t, SymbolOne, got.Symbol)
		assert.Equal(t, timing.SpeedHigh, got.Speed)
		got = cls.Classify(n0.High.Nominal, n0.Low.Nominal, prefer)
		assert.Equal(t, SymbolZero, got.Symbol)
		assert.Equal(t, timing.SpeedNormal, got.Speed)
	}
	noHigh := NewClassifier(p, 20e6, false)
	assert.False(t, noHigh.Classify(hs1.High.Nominal, hs1.Low.Nominal, timing.SpeedHigh).Valid())
}

func TestResyncAfterCorruption(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	enc.WriteReset()
	a := []profile.RGB{hex(t, "#010203"), hex(t, "#040506")}
	enc.WritePacket(a...)
	enc.WriteFrame(hex(t, "#0a0b0c"))
	enc.WriteFrame(hex(t, "#0d0e0f"))
	enc.WritePulse(100e-9, 2000e-9)
	enc.WriteFrame(hex(t, "#ffffff"))
	enc.WriteReset()
	c := []profile.RGB{hex(t, "#111111"), hex(t, "#222222"), hex(t, "#333333")}
	enc.WritePacket(c...)

	var events []Event
	res, sum := decodeAll(t, enc.Finish(), profile.WS2812B, Options{
		SampleRateHz: 20e6,
		OnEvent:      func(ev Event) { events = append(events, ev) },
	})
	require.Equal(t, [][]profile.RGB{a, c}, colorsByPacket(res))
	assert.Equal(t, 1, sum.Resyncs)
	require.Len(t, events, 1)
	assert.Equal(t, EventResync, events[0].Kind)
	assert.Equal(t, FaultHigh, events[0].Fault)
	assert.True(t, errors.Is(events[0].Err, ErrInvalidBitTiming))
	// Packet ordinals only count committed packets.
	assert.Equal(t, 1, res.Frames[2].Packet)

	entry := events[0].Entry("run-1")
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, "resync", entry.Kind)
	assert.Equal(t, events[0].Sample, entry.Sample)
	assert.Contains(t, entry.Detail, "high 100ns")
	assert.Contains(t, entry.Detail, "high phase out of tolerance")
}

func TestPrematureResetKeepsCompletedFrames(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	enc.WriteReset()
	first := []profile.RGB{hex(t, "#abcdef")}
	enc.WriteFrame(first...)
	enc.WriteWord(0x12)
	enc.WriteReset()
	next := []profile.RGB{hex(t, "#123456")}
	enc.WritePacket(next...)

	var events []Event
	buf := enc.Finish()
	res, sum := decodeAll(t, buf, profile.WS2812B, Options{
		SampleRateHz: 20e6,
		OnEvent:      func(ev Event) { events = append(events, ev) },
	})
	require.Equal(t, [][]profile.RGB{first, next}, colorsByPacket(res))
	assert.Equal(t, 1, sum.PrematureResets)
	assert.Zero(t, sum.Resyncs)
	assert.Equal(t, 2, sum.Frames)
	require.Len(t, events, 1)
	assert.Equal(t, EventPrematureReset, events[0].Kind)
	assert.Equal(t, 0, events[0].Packet)

	buf.Rewind()
	d, err := New(buf, profile.Get(profile.WS2812B), Options{SampleRateHz: 20e6})
	require.NoError(t, err)
	pkt, err := d.Next()
	require.NoError(t, err)
	assert.True(t, pkt.Terminated)
	assert.Len(t, pkt.Frames, 1)
}

func TestPrematureResetWithoutFrames(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	enc.WriteReset()
	enc.WriteWord(0x12)
	enc.WriteReset()
	next := []profile.RGB{hex(t, "#123456")}
	enc.WritePacket(next...)

	res, sum := decodeAll(t, enc.Finish(), profile.WS2812B, Options{SampleRateHz: 20e6})
	require.Equal(t, [][]profile.RGB{next}, colorsByPacket(res))
	assert.Equal(t, 1, sum.PrematureResets)
	assert.Equal(t, 0, res.Frames[0].Packet)
}

func TestMidStreamAttach(t *testing.T) {
	sim, err := encoder.Simulate(encoder.SimulationOptions{
		Controller:   profile.WS2812B,
		SampleRateHz: 24e6,
		Packets:      4,
		Seed:         9,
	})
	require.NoError(t, err)
	full, _ := decodeAll(t, sim.Buffer, profile.WS2812B, Options{SampleRateHz: 24e6})
	require.Len(t, full.Packets, 4)

	start := full.PacketFrames(1)[2].Start + 7
	sim.Buffer.Rewind()
	res, _ := decodeAll(t, sim.Buffer, profile.WS2812B, Options{SampleRateHz: 24e6, StartSample: start})
	if diff := cmp.Diff(sim.Packets[2:], colorsByPacket(res)); diff != "" {
		t.Fatalf("attached decode mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, res.Frames[0].Index)
}

func TestColorLayoutOnWire(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	enc.WriteReset()
	enc.WritePacket(hex(t, "#112233"))
	buf := enc.Finish()

	res, _ := decodeAll(t, buf, profile.WS2812B, Options{SampleRateHz: 20e6})
	require.Len(t, res.Frames, 1)
	assert.Equal(t, profile.RGB{R: 0x11, G: 0x22, B: 0x33}, res.Frames[0].Color())

	// LPD1886 shares the bit timing but is wired RGB, so reading the same
	// line with it exposes the green-first order.
	buf.Rewind()
	raw, _ := decodeAll(t, buf, profile.LPD1886_8, Options{SampleRateHz: 20e6})
	require.Len(t, raw.Frames, 1)
	assert.Equal(t, profile.RGB{R: 0x22, G: 0x11, B: 0x33}, raw.Frames[0].Color())
}

func TestHighSpeedMixing(t *testing.T) {
	enc := newEncoder(t, profile.WS2811, 20e6)
	enc.WriteReset()
	normal1 := []profile.RGB{hex(t, "#ff0000"), hex(t, "#00ff00")}
	fast := []profile.RGB{hex(t, "#0000ff"), hex(t, "#ffffff"), hex(t, "#000000")}
	normal2 := []profile.RGB{hex(t, "#808080")}
	enc.WritePacket(normal1...)
	require.NoError(t, enc.SetHighSpeed(true))
	enc.WritePacket(fast...)
	require.NoError(t, enc.SetHighSpeed(false))
	enc.WritePacket(normal2...)

	res, sum := decodeAll(t, enc.Finish(), profile.WS2811, Options{SampleRateHz: 20e6})
	require.Equal(t, [][]profile.RGB{normal1, fast, normal2}, colorsByPacket(res))
	assert.Zero(t, sum.Resyncs)
	assert.Equal(t, timing.SpeedNormal, res.PacketFrames(0)[0].Speed)
	assert.Equal(t, timing.SpeedHigh, res.PacketFrames(1)[2].Speed)
	assert.Equal(t, timing.SpeedNormal, res.PacketFrames(2)[0].Speed)

	// With high speed disabled the fast packet is lost, the others survive.
	enc2 := newEncoder(t, profile.WS2811, 20e6)
	enc2.WriteReset()
	enc2.WritePacket(normal1...)
	require.NoError(t, enc2.SetHighSpeed(true))
	enc2.WritePacket(fast...)
	require.NoError(t, enc2.SetHighSpeed(false))
	enc2.WritePacket(normal2...)
	res2, sum2 := decodeAll(t, enc2.Finish(), profile.WS2811, Options{SampleRateHz: 20e6, DisableHighSpeed: true})
	require.Equal(t, [][]profile.RGB{normal1, normal2}, colorsByPacket(res2))
	assert.Equal(t, 1, sum2.Resyncs)
}

func TestFrameSpeedFollowsItsBits(t *testing.T) {
	enc := newEncoder(t, profile.WS2811, 20e6)
	enc.WriteReset()
	enc.WriteFrame(hex(t, "#102030"))
	require.NoError(t, enc.SetHighSpeed(true))
	enc.WriteFrame(hex(t, "#405060"))
	enc.WriteReset()

	d, err := New(enc.Finish(), profile.Get(profile.WS2811), Options{SampleRateHz: 20e6})
	require.NoError(t, err)
	pkt, err := d.Next()
	require.NoError(t, err)
	require.Len(t, pkt.Frames, 2)
	assert.Equal(t, hex(t, "#405060"), pkt.Frames[1].Color())
	assert.Equal(t, timing.SpeedNormal, pkt.Frames[0].Speed)
	assert.Equal(t, timing.SpeedHigh, pkt.Frames[1].Speed)
	assert.Equal(t, timing.SpeedNormal, pkt.Speed)
	assert.Zero(t, d.Summary().Resyncs)
}

func TestExhaustionMidFrame(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	enc.WriteReset()
	full := []profile.RGB{hex(t, "#010101"), hex(t, "#020202")}
	for _, c := range full {
		enc.WriteFrame(c)
	}
	enc.WriteWord(0xff)
	buf := enc.Finish()

	d, err := New(buf, profile.Get(profile.WS2812B), Options{SampleRateHz: 20e6})
	require.NoError(t, err)
	pkt, err := d.Next()
	require.NoError(t, err)
	assert.False(t, pkt.Terminated)
	require.Len(t, pkt.Frames, 2)
	assert.Equal(t, full[1], pkt.Frames[1].Color())
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, d.Summary().Unterminated)
}

func TestNoResetNoFrames(t *testing.T) {
	enc := newEncoder(t, profile.WS2812B, 20e6)
	for i := 0; i < 10; i++ {
		enc.WriteFrame(hex(t, "#aaaaaa"))
	}
	res, sum := decodeAll(t, enc.Finish(), profile.WS2812B, Options{SampleRateHz: 20e6})
	assert.Empty(t, res.Frames)
	assert.Zero(t, sum.Packets)
}

func TestRunCancelledBetweenPackets(t *testing.T) {
	sim, err := encoder.Simulate(encoder.SimulationOptions{Controller: profile.WS2813, SampleRateHz: 20e6, Packets: 5, Seed: 3})
	require.NoError(t, err)
	d, err := New(sim.Buffer, profile.Get(profile.WS2813), Options{SampleRateHz: 20e6, Metrics: common.NewMetrics()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := NewResults()
	var positions []int64
	progress := ProgressFunc(func(sample int64) {
		positions = append(positions, sample)
		if len(positions) == 2 {
			cancel()
		}
	})
	sum, err := d.Run(ctx, res, progress)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sum.Packets)
	assert.Len(t, res.Packets, 2)
	assert.Len(t, res.Frames, 2*encoder.DefaultFramesPerPacket)
	require.Len(t, positions, 2)
	assert.Less(t, positions[0], positions[1])
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New(channel.NewBuilder(channel.Low).Buffer(), profile.Get(profile.WS2811), Options{})
	assert.ErrorIs(t, err, ErrSampleRate)
}

type failingSink struct{ Results }

func (f *failingSink) CommitPacketAndStartNew() error { return errors.New("disk full") }

func TestRunPropagatesSinkErrors(t *testing.T) {
	sim, err := encoder.Simulate(encoder.SimulationOptions{Controller: profile.UCS1903, SampleRateHz: 20e6, Seed: 1})
	require.NoError(t, err)
	d, err := New(sim.Buffer, profile.Get(profile.UCS1903), Options{SampleRateHz: 20e6})
	require.NoError(t, err)
	_, err = d.Run(context.Background(), MultiSink(NewResults(), &failingSink{}), nil)
	assert.ErrorContains(t, err, "disk full")
}
