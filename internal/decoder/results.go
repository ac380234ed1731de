package decoder

import (
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

// Frame is the color data addressed to one LED.
type Frame struct {
	// Index is the LED position within its packet, starting at zero.
	Index  int           `json:"index"`
	Packet int           `json:"packet"`
	Start  int64         `json:"start"`
	End    int64         `json:"end"`
	Colors []profile.RGB `json:"colors"`
	Speed  timing.Speed  `json:"speed"`
}

// Color is the first RGB triple, which is the whole frame for three
// channel controllers.
func (f Frame) Color() profile.RGB {
	if len(f.Colors) == 0 {
		return profile.RGB{}
	}
	return f.Colors[0]
}

// Value is the packed form of Color.
func (f Frame) Value() uint64 {
	return f.Color().Pack()
}

// Packet is the run of frames between two resets.
type Packet struct {
	Ordinal int
	Frames  []Frame
	Start   int64
	End     int64
	Speed   timing.Speed
	// Terminated is false for a packet cut off by the end of the capture.
	Terminated bool
}

// Sink receives decoded frames. Frames are only delivered at packet commit
// points; a sink never sees frames from an abandoned packet.
type Sink interface {
	AddFrame(f Frame) error
	CommitPacketAndStartNew() error
	Commit() error
}

// PacketRange is an inclusive range of indices into Results.Frames.
type PacketRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

func (r PacketRange) Len() int { return r.Last - r.First + 1 }

// Results is an in-memory Sink.
type Results struct {
	Frames  []Frame
	Packets []PacketRange

	packetStart int
	committed   int
}

func NewResults() *Results {
	return &Results{}
}

func (r *Results) AddFrame(f Frame) error {
	r.Frames = append(r.Frames, f)
	return nil
}

// CommitPacketAndStartNew closes the packet opened by the previous call.
// Empty packets are not recorded.
func (r *Results) CommitPacketAndStartNew() error {
	if len(r.Frames) > r.packetStart {
		r.Packets = append(r.Packets, PacketRange{First: r.packetStart, Last: len(r.Frames) - 1})
	}
	r.packetStart = len(r.Frames)
	return nil
}

func (r *Results) Commit() error {
	r.committed = len(r.Frames)
	return nil
}

// Committed is the number of frames visible at the last Commit.
func (r *Results) Committed() int {
	return r.committed
}

// PacketFrames returns the frames of packet i.
func (r *Results) PacketFrames(i int) []Frame {
	if i < 0 || i >= len(r.Packets) {
		return nil
	}
	p := r.Packets[i]
	return r.Frames[p.First : p.Last+1]
}

type multiSink []Sink

// MultiSink fans every call out to each sink in order, stopping at the first
// error.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) AddFrame(f Frame) error {
	for _, s := range m {
		if err := s.AddFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) CommitPacketAndStartNew() error {
	for _, s := range m {
		if err := s.CommitPacketAndStartNew(); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Commit() error {
	for _, s := range m {
		if err := s.Commit(); err != nil {
			return err
		}
	}
	return nil
}
