// Package decoder reconstructs LED color frames from the edges of a captured
// data line.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

// MinimumSampleRateHz is the slowest capture the simulator will produce.
// Slower captures can still be decoded but the half-sample tolerance starts
// to blur neighbouring windows.
const MinimumSampleRateHz = 12_000_000

var (
	ErrInvalidBitTiming = errors.New("pulse pair outside every tolerance window")
	ErrPrematureReset   = errors.New("reset before the last bit of a frame")
	ErrSampleRate       = errors.New("sample rate must be positive")
)

type state uint8

const (
	stateSearching state = iota
	stateInPacket
	stateReadingChannel
	stateExhausted
)

func (s state) String() string {
	switch s {
	case stateSearching:
		return "searching"
	case stateInPacket:
		return "in-packet"
	case stateReadingChannel:
		return "reading-channel"
	default:
		return "exhausted"
	}
}

// EventKind names a recoverable decoding problem.
type EventKind string

const (
	EventResync         EventKind = "resync"
	EventPrematureReset EventKind = "premature-reset"
)

// Event describes a place where decoding lost or regained its footing.
type Event struct {
	Kind   EventKind
	Sample int64
	Packet int
	Err    error
	Fault  Fault
	High   float64
	Low    float64
}

// Entry converts e into an event-log record.
func (e Event) Entry(runID string) common.Event {
	detail := fmt.Sprintf("high %.0fns low %.0fns", e.High*1e9, e.Low*1e9)
	if e.Fault != FaultNone {
		detail = fmt.Sprintf("%s; %s", detail, e.Fault)
	}
	if e.Err != nil {
		detail = fmt.Sprintf("%v: %s", e.Err, detail)
	}
	return common.Event{RunID: runID, Kind: string(e.Kind), Sample: e.Sample, Packet: e.Packet, Detail: detail}
}

// Options tunes a Decoder. SampleRateHz is required.
type Options struct {
	SampleRateHz     float64
	DisableHighSpeed bool
	// StartSample attaches the decoder mid-capture. Everything before the
	// first reset at or after it is skipped.
	StartSample int64
	Metrics     *common.Metrics
	OnEvent     func(Event)
}

// Summary counts what a Decoder has produced so far.
type Summary struct {
	Frames          int   `json:"frames"`
	Packets         int   `json:"packets"`
	Unterminated    int   `json:"unterminated"`
	Resyncs         int   `json:"resyncs"`
	PrematureResets int   `json:"prematureResets"`
	LastSample      int64 `json:"lastSample"`
}

// Decoder is a pull-based state machine over one channel. It is not safe for
// concurrent use.
type Decoder struct {
	stream     channel.Stream
	profile    profile.Profile
	classifier *Classifier
	rate       float64
	opts       Options

	state  state
	synced bool

	pending    []Frame
	speed      timing.Speed
	speedKnown bool

	words      []uint16
	word       uint16
	wordBits   uint8
	frameStart int64
	frameSpeed timing.Speed

	summary Summary
}

func New(stream channel.Stream, p profile.Profile, opts Options) (*Decoder, error) {
	if opts.SampleRateHz <= 0 {
		return nil, ErrSampleRate
	}
	if opts.StartSample > 0 {
		stream.AdvanceTo(opts.StartSample)
	}
	if opts.Metrics != nil {
		opts.Metrics.SetTotalSamples(stream.End())
	}
	return &Decoder{
		stream:     stream,
		profile:    p,
		classifier: NewClassifier(p, opts.SampleRateHz, !opts.DisableHighSpeed),
		rate:       opts.SampleRateHz,
		opts:       opts,
		state:      stateSearching,
		words:      make([]uint16, 0, p.ChannelCount()),
	}, nil
}

func (d *Decoder) Profile() profile.Profile { return d.profile }
func (d *Decoder) Summary() Summary         { return d.summary }

// Next decodes up to the next packet boundary. Packets without frames are
// skipped. It returns io.EOF once the capture runs out; a final packet that
// was not closed by a reset is returned first with Terminated unset.
func (d *Decoder) Next() (Packet, error) {
	for {
		var next state
		var out *Packet
		switch d.state {
		case stateSearching:
			next = d.search()
		case stateInPacket:
			next = d.beginFrame()
		case stateReadingChannel:
			next, out = d.readBit()
		case stateExhausted:
			d.summary.LastSample = d.stream.Position()
			if p := d.closePacket(false); p != nil {
				return *p, nil
			}
			return Packet{}, io.EOF
		}
		d.state = next
		if out != nil {
			return *out, nil
		}
	}
}

// Progress receives the capture position after each committed packet.
type Progress interface {
	ReportProgress(sample int64)
}

type ProgressFunc func(sample int64)

func (f ProgressFunc) ReportProgress(sample int64) { f(sample) }

// Run drains the decoder into sink. Cancellation and progress are checked
// between packets only, so a packet is never half delivered.
func (d *Decoder) Run(ctx context.Context, sink Sink, progress Progress) (Summary, error) {
	if m := d.opts.Metrics; m != nil {
		m.Start()
		defer m.Stop()
	}
	for {
		if err := ctx.Err(); err != nil {
			return d.summary, err
		}
		pkt, err := d.Next()
		if errors.Is(err, io.EOF) {
			if m := d.opts.Metrics; m != nil {
				m.SetPosition(d.stream.End())
			}
			return d.summary, sink.Commit()
		}
		if err != nil {
			return d.summary, err
		}
		for _, f := range pkt.Frames {
			if err := sink.AddFrame(f); err != nil {
				return d.summary, fmt.Errorf("add frame: %w", err)
			}
		}
		if err := sink.CommitPacketAndStartNew(); err != nil {
			return d.summary, fmt.Errorf("commit packet: %w", err)
		}
		if err := sink.Commit(); err != nil {
			return d.summary, err
		}
		pos := d.stream.Position()
		if m := d.opts.Metrics; m != nil {
			m.SetPosition(pos)
		}
		if progress != nil {
			progress.ReportProgress(pos)
		}
	}
}

// Decode runs a fresh decoder over stream and collects everything in memory.
func Decode(ctx context.Context, stream channel.Stream, p profile.Profile, opts Options) (*Results, Summary, error) {
	d, err := New(stream, p, opts)
	if err != nil {
		return nil, Summary{}, err
	}
	res := NewResults()
	sum, err := d.Run(ctx, res, nil)
	return res, sum, err
}

func (d *Decoder) samples(seconds float64) int64 {
	return timing.Samples(seconds, d.rate)
}

func (d *Decoder) seconds(samples int64) float64 {
	return timing.Seconds(samples, d.rate)
}

// search scans for a low phase long enough to be a reset and parks the cursor
// on the rising edge that ends it.
func (d *Decoder) search() state {
	if d.synced {
		d.synced = false
		d.openPacket()
		return stateInPacket
	}
	s := d.stream
	if s.Level() == channel.High {
		if !s.AdvanceToNextEdge() {
			return stateExhausted
		}
	}
	for {
		start := s.Position()
		next, ok := s.NextEdge()
		if !ok {
			return stateExhausted
		}
		if d.classifier.IsReset(d.seconds(next - start)) {
			s.AdvanceToNextEdge()
			d.openPacket()
			return stateInPacket
		}
		s.AdvanceToNextEdge()
		if !s.AdvanceToNextEdge() {
			return stateExhausted
		}
	}
}

func (d *Decoder) openPacket() {
	d.pending = nil
	d.speed = timing.SpeedNormal
	d.speedKnown = false
}

func (d *Decoder) beginFrame() state {
	d.words = d.words[:0]
	d.word = 0
	d.wordBits = 0
	return stateReadingChannel
}

func (d *Decoder) bitsInFrame() int {
	return len(d.words)*int(d.profile.BitsPerChannel()) + int(d.wordBits)
}

func (d *Decoder) frameComplete() bool {
	return len(d.words) == int(d.profile.ChannelCount())
}

func (d *Decoder) shift(bit uint8) {
	if d.profile.ShiftOrder() == profile.LSBFirst {
		d.word |= uint16(bit) << d.wordBits
	} else {
		d.word = d.word<<1 | uint16(bit)
	}
	d.wordBits++
	if d.wordBits == d.profile.BitsPerChannel() {
		d.words = append(d.words, d.word)
		d.word = 0
		d.wordBits = 0
	}
}

// readBit measures one pulse pair starting at a rising edge and feeds it into
// the current frame.
func (d *Decoder) readBit() (state, *Packet) {
	s := d.stream
	if s.Level() == channel.Low {
		if !s.AdvanceToNextEdge() {
			return stateExhausted, nil
		}
	}
	begin := s.Position()
	if !s.AdvanceToNextEdge() {
		return stateExhausted, nil
	}
	fall := s.Position()
	rise, hasRise := s.NextEdge()
	lowSamples := rise - fall
	if !hasRise {
		// A trailing low run only counts if it is already long enough to be
		// a reset; anything shorter might still be a data bit.
		lowSamples = s.End() - fall
		if !d.classifier.IsReset(d.seconds(lowSamples)) {
			return stateExhausted, nil
		}
	}
	high := d.seconds(fall - begin)
	low := d.seconds(lowSamples)

	prefer := timing.SpeedNormal
	if d.speedKnown {
		prefer = d.speed
	}
	cl := d.classifier.Classify(high, low, prefer)
	if !cl.Valid() {
		d.resync(Event{Kind: EventResync, Sample: fall, Err: ErrInvalidBitTiming, Fault: cl.Fault, High: high, Low: low})
		return stateSearching, nil
	}
	if !d.speedKnown {
		d.speed = cl.Speed
		d.speedKnown = true
	}
	if d.bitsInFrame() == 0 {
		d.frameStart = begin
	}
	d.frameSpeed = cl.Speed
	d.shift(cl.Bit())

	if cl.Reset {
		if hasRise {
			s.AdvanceToNextEdge()
		} else {
			s.AdvanceTo(s.End())
		}
		if d.frameComplete() {
			d.emitFrame(fall + d.samples(cl.Timing.Low.Nominal))
			return stateInPacket, d.closePacket(true)
		}
		// Only the partial frame is lost. Frames already completed close
		// as a packet, and the reset just consumed is itself a sync point.
		d.resync(Event{Kind: EventPrematureReset, Sample: fall, Err: ErrPrematureReset, High: high, Low: low})
		d.synced = true
		return stateSearching, d.closePacket(true)
	}

	s.AdvanceToNextEdge()
	if d.frameComplete() {
		d.emitFrame(rise - 1)
		return stateInPacket, nil
	}
	return stateReadingChannel, nil
}

func (d *Decoder) emitFrame(end int64) {
	d.pending = append(d.pending, Frame{
		Index:  len(d.pending),
		Packet: d.summary.Packets,
		Start:  d.frameStart,
		End:    end,
		Colors: profile.ToCanonical(d.profile.ColorLayout(), d.words),
		Speed:  d.frameSpeed,
	})
	d.words = d.words[:0]
}

func (d *Decoder) closePacket(terminated bool) *Packet {
	frames := d.pending
	d.openPacket()
	if len(frames) == 0 {
		return nil
	}
	pkt := &Packet{
		Ordinal:    d.summary.Packets,
		Frames:     frames,
		Start:      frames[0].Start,
		End:        frames[len(frames)-1].End,
		Speed:      frames[0].Speed,
		Terminated: terminated,
	}
	d.summary.Packets++
	d.summary.Frames += len(frames)
	if !terminated {
		d.summary.Unterminated++
	}
	if m := d.opts.Metrics; m != nil {
		m.AddPacket(len(frames))
	}
	return pkt
}

// resync abandons the frame in progress. A resync also abandons the packet's
// completed frames; a premature reset leaves them for the caller to close.
func (d *Decoder) resync(ev Event) {
	ev.Packet = d.summary.Packets
	partial := d.bitsInFrame()
	d.words = d.words[:0]
	d.word = 0
	d.wordBits = 0
	switch ev.Kind {
	case EventPrematureReset:
		d.summary.PrematureResets++
		if m := d.opts.Metrics; m != nil {
			m.IncPrematureReset()
		}
		common.Debugf("%s at sample %d (high %.0fns low %.0fns), dropped %d bits of frame %d",
			ev.Kind, ev.Sample, ev.High*1e9, ev.Low*1e9, partial, len(d.pending))
	default:
		dropped := len(d.pending)
		d.pending = nil
		d.summary.Resyncs++
		if m := d.opts.Metrics; m != nil {
			m.IncResync()
		}
		common.Debugf("%s at sample %d (%v, high %.0fns low %.0fns), dropped %d frames",
			ev.Kind, ev.Sample, ev.Err, ev.High*1e9, ev.Low*1e9, dropped)
	}
	if d.opts.OnEvent != nil {
		d.opts.OnEvent(ev)
	}
}
