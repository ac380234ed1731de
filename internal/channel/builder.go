package channel

// Builder records a synthetic waveform one phase at a time.
type Builder struct {
	initial Level
	level   Level
	pos     int64
	edges   []int64
}

func NewBuilder(initial Level) *Builder {
	return &Builder{initial: initial, level: initial}
}

func (b *Builder) Level() Level    { return b.level }
func (b *Builder) Position() int64 { return b.pos }

// Advance holds the current level for n samples.
func (b *Builder) Advance(n int64) {
	if n > 0 {
		b.pos += n
	}
}

// Transition flips the level at the current position. Two transitions at the
// same position cancel out.
func (b *Builder) Transition() {
	b.level = b.level.Invert()
	if b.pos == 0 {
		b.initial = b.level
		return
	}
	if n := len(b.edges); n > 0 && b.edges[n-1] == b.pos {
		b.edges = b.edges[:n-1]
		return
	}
	b.edges = append(b.edges, b.pos)
}

// TransitionTo flips the level only if it differs from l.
func (b *Builder) TransitionTo(l Level) {
	if b.level != l {
		b.Transition()
	}
}

// Buffer returns a Stream over what was recorded so far. Later writes to the
// builder do not affect the returned buffer.
func (b *Builder) Buffer() *Buffer {
	edges := make([]int64, len(b.edges))
	copy(edges, b.edges)
	return &Buffer{initial: b.initial, edges: edges, end: b.pos}
}
