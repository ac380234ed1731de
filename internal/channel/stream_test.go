package channel

import (
	"errors"
	"testing"
)

func TestBufferCursor(t *testing.T) {
	b, err := NewBuffer(Low, []int64{10, 15, 40}, 50)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if b.Level() != Low || b.Position() != 0 {
		t.Fatalf("start = %v@%d", b.Level(), b.Position())
	}
	if next, ok := b.NextEdge(); !ok || next != 10 {
		t.Fatalf("NextEdge = %d,%v want 10,true", next, ok)
	}
	if b.CrossingWithin(9) {
		t.Fatalf("CrossingWithin(9) should be false")
	}
	if !b.CrossingWithin(10) {
		t.Fatalf("CrossingWithin(10) should be true")
	}
	if !b.AdvanceToNextEdge() || b.Position() != 10 || b.Level() != High {
		t.Fatalf("after first edge = %v@%d", b.Level(), b.Position())
	}
	b.AdvanceBy(3)
	if b.Position() != 13 || b.Level() != High {
		t.Fatalf("AdvanceBy = %v@%d", b.Level(), b.Position())
	}
	b.AdvanceTo(20)
	if b.Level() != Low {
		t.Fatalf("level at 20 = %v, want low", b.Level())
	}
	b.AdvanceToNextEdge()
	if b.AdvanceToNextEdge() {
		t.Fatalf("expected no more edges")
	}
	if b.Position() != 40 || b.Level() != High {
		t.Fatalf("end = %v@%d", b.Level(), b.Position())
	}
	b.AdvanceTo(1000)
	if b.Position() != 50 {
		t.Fatalf("AdvanceTo clamps to end, got %d", b.Position())
	}
	b.Rewind()
	if b.Position() != 0 || b.Level() != Low {
		t.Fatalf("Rewind = %v@%d", b.Level(), b.Position())
	}
}

func TestNewBufferRejectsUnsortedEdges(t *testing.T) {
	if _, err := NewBuffer(Low, []int64{5, 5}, 10); !errors.Is(err, ErrEdgeOrder) {
		t.Fatalf("err = %v, want ErrEdgeOrder", err)
	}
	if _, err := NewBuffer(Low, []int64{5}, 3); err == nil {
		t.Fatalf("expected error for end before last edge")
	}
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(Low)
	b.Transition() // at 0: flips the initial level
	b.Advance(4)
	b.Transition()
	b.Advance(6)
	b.Transition()
	b.Transition() // cancels
	b.Advance(2)
	b.TransitionTo(Low) // no-op
	b.TransitionTo(High)
	b.Advance(1)
	buf := b.Buffer()
	if buf.InitialLevel() != High {
		t.Fatalf("initial = %v, want high", buf.InitialLevel())
	}
	want := []int64{4, 12}
	if len(buf.Edges()) != len(want) {
		t.Fatalf("edges = %v, want %v", buf.Edges(), want)
	}
	for i := range want {
		if buf.Edges()[i] != want[i] {
			t.Fatalf("edges = %v, want %v", buf.Edges(), want)
		}
	}
	if buf.End() != 13 {
		t.Fatalf("end = %d, want 13", buf.End())
	}
	phases := buf.Phases()
	if len(phases) != 1 || phases[0].Level != Low || phases[0].Length != 8 {
		t.Fatalf("phases = %+v", phases)
	}
}
