// Package channel provides buffered access to the edges of one captured
// digital line.
package channel

import (
	"errors"
	"fmt"
	"sort"
)

// Level is the logic level of the line.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) Invert() Level {
	if l == High {
		return Low
	}
	return High
}

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Stream is a forward cursor over the transitions of one channel. Positions
// are absolute sample indices.
type Stream interface {
	// Level is the line level at the current position.
	Level() Level
	Position() int64
	// AdvanceToNextEdge moves onto the next transition. It returns false and
	// leaves the cursor untouched when none remain.
	AdvanceToNextEdge() bool
	AdvanceBy(n int64)
	AdvanceTo(pos int64)
	// NextEdge is the position of the next transition after the cursor.
	NextEdge() (int64, bool)
	// CrossingWithin reports whether a transition occurs in the next n
	// samples.
	CrossingWithin(n int64) bool
	// End is one past the last captured sample.
	End() int64
}

var ErrEdgeOrder = errors.New("channel: edges must be strictly increasing")

// Buffer is an in-memory Stream backed by a sorted slice of edge positions.
type Buffer struct {
	initial Level
	edges   []int64
	end     int64

	pos int64
	idx int
}

// NewBuffer validates edges and returns a cursor positioned at sample 0. An
// edge at position p means the level changes starting with sample p.
func NewBuffer(initial Level, edges []int64, end int64) (*Buffer, error) {
	var prev int64
	for i, e := range edges {
		if e <= prev {
			return nil, fmt.Errorf("%w: edge %d at %d after %d", ErrEdgeOrder, i, e, prev)
		}
		prev = e
	}
	if end < prev {
		return nil, fmt.Errorf("channel: end %d before last edge %d", end, prev)
	}
	return &Buffer{initial: initial, edges: edges, end: end}, nil
}

func (b *Buffer) InitialLevel() Level { return b.initial }
func (b *Buffer) Edges() []int64      { return b.edges }
func (b *Buffer) End() int64          { return b.end }
func (b *Buffer) Position() int64     { return b.pos }

func (b *Buffer) Level() Level {
	if b.idx%2 == 1 {
		return b.initial.Invert()
	}
	return b.initial
}

func (b *Buffer) AdvanceToNextEdge() bool {
	if b.idx >= len(b.edges) {
		return false
	}
	b.pos = b.edges[b.idx]
	b.idx++
	return true
}

func (b *Buffer) AdvanceBy(n int64) {
	b.AdvanceTo(b.pos + n)
}

// AdvanceTo moves the cursor to pos, clamped to the capture. Moving backwards
// is allowed and is how a Buffer is rewound.
func (b *Buffer) AdvanceTo(pos int64) {
	if pos < 0 {
		pos = 0
	}
	if pos > b.end {
		pos = b.end
	}
	b.pos = pos
	b.idx = sort.Search(len(b.edges), func(i int) bool { return b.edges[i] > pos })
}

func (b *Buffer) NextEdge() (int64, bool) {
	if b.idx >= len(b.edges) {
		return 0, false
	}
	return b.edges[b.idx], true
}

func (b *Buffer) CrossingWithin(n int64) bool {
	next, ok := b.NextEdge()
	return ok && next <= b.pos+n
}

// Rewind returns the cursor to sample 0.
func (b *Buffer) Rewind() {
	b.pos = 0
	b.idx = 0
}

// Phase is a run of samples at a constant level.
type Phase struct {
	Level  Level
	Start  int64
	Length int64
}

// Phases lists every complete phase of the buffer, that is every run bounded
// by an edge on both sides. The runs before the first edge and after the last
// are left out since their true length is unknown.
func (b *Buffer) Phases() []Phase {
	if len(b.edges) < 2 {
		return nil
	}
	out := make([]Phase, 0, len(b.edges)-1)
	level := b.initial.Invert()
	for i := 0; i+1 < len(b.edges); i++ {
		out = append(out, Phase{Level: level, Start: b.edges[i], Length: b.edges[i+1] - b.edges[i]})
		level = level.Invert()
	}
	return out
}
