package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/encoder"
	"example.com/ledgate/internal/profile"
)

func sample(t *testing.T) *Capture {
	t.Helper()
	sim, err := encoder.Simulate(encoder.SimulationOptions{Controller: profile.WS2812B, SampleRateHz: 20e6, Packets: 2, Seed: 5})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return &Capture{SampleRateHz: 20e6, Buffer: sim.Buffer}
}

func equalBuffers(t *testing.T, a, b *channel.Buffer) {
	t.Helper()
	if a.InitialLevel() != b.InitialLevel() || a.End() != b.End() {
		t.Fatalf("header mismatch: %v/%d vs %v/%d", a.InitialLevel(), a.End(), b.InitialLevel(), b.End())
	}
	if len(a.Edges()) != len(b.Edges()) {
		t.Fatalf("edge count %d vs %d", len(a.Edges()), len(b.Edges()))
	}
	for i := range a.Edges() {
		if a.Edges()[i] != b.Edges()[i] {
			t.Fatalf("edge %d: %d vs %d", i, a.Edges()[i], b.Edges()[i])
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	in := sample(t)
	for _, name := range []string{"a.ledcap", "a.ledcap.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteFile(path, in); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			out, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if out.SampleRateHz != in.SampleRateHz {
				t.Fatalf("rate = %v, want %v", out.SampleRateHz, in.SampleRateHz)
			}
			equalBuffers(t, in.Buffer, out.Buffer)
		})
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(strings.NewReader("not a capture at all, sorry....")); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, sample(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	cut := buf.Bytes()[:buf.Len()-10]
	if _, err := Read(bytes.NewReader(cut)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if err := Write(&buf, &Capture{Buffer: sample(t).Buffer}); !errors.Is(err, ErrSampleRate) {
		t.Fatalf("err = %v, want ErrSampleRate", err)
	}
}

func header(end, count uint64) []byte {
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	hdr[4] = version
	binary.LittleEndian.PutUint64(hdr[8:16], math.Float64bits(20e6))
	binary.LittleEndian.PutUint64(hdr[16:24], end)
	binary.LittleEndian.PutUint64(hdr[24:32], count)
	return hdr[:]
}

func TestReadHugeEdgeCountIsTruncated(t *testing.T) {
	if _, err := Read(bytes.NewReader(header(1<<40, 1<<40))); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if _, err := Read(bytes.NewReader(header(1<<63, 0))); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("err = %v, want negative sample count", err)
	}
}

func TestImportCSV(t *testing.T) {
	in := `Time [s],Channel 0
0.000000000,0
0.000060000,1
0.000060800,0
0.000061250,1
`
	c, err := ImportCSV(strings.NewReader(in), 20e6)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	want := []int64{1200, 1216, 1225}
	got := c.Buffer.Edges()
	if len(got) != len(want) {
		t.Fatalf("edges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("edges = %v, want %v", got, want)
		}
	}
	if c.Buffer.InitialLevel() != channel.Low || c.Buffer.End() != 1226 {
		t.Fatalf("initial %v end %d", c.Buffer.InitialLevel(), c.Buffer.End())
	}

	if _, err := ImportCSV(strings.NewReader("Time [s],Channel 0\n"), 20e6); !errors.Is(err, ErrEmptyCSV) {
		t.Fatalf("err = %v, want ErrEmptyCSV", err)
	}
	if _, err := ImportCSV(strings.NewReader("0,0\n0.001,2\n"), 20e6); err == nil {
		t.Fatalf("expected error for bad level")
	}
}

func TestOpenByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trace.CSV")
	if err := os.WriteFile(csvPath, []byte("0,1\n0.0000001,0\n0.0000002,1\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	c, err := Open(csvPath, 20e6)
	if err != nil {
		t.Fatalf("Open csv: %v", err)
	}
	if c.Buffer.InitialLevel() != channel.High || len(c.Buffer.Edges()) != 2 {
		t.Fatalf("unexpected csv capture: %v %v", c.Buffer.InitialLevel(), c.Buffer.Edges())
	}

	in := sample(t)
	capPath := filepath.Join(dir, "trace.ledcap")
	if err := WriteFile(capPath, in); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := Open(capPath, 0)
	if err != nil {
		t.Fatalf("Open ledcap: %v", err)
	}
	equalBuffers(t, in.Buffer, out.Buffer)
}
