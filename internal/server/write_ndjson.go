package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/profile"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
}

// NewNDJSONWriter wraps the provided ResponseWriter with a helper that writes
// newline-delimited JSON. If the writer supports http.Flusher, Flush will be
// invoked after every write to push bytes to the client promptly.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &NDJSONWriter{writer: w, flusher: flusher}
}

// WriteObject marshals the provided value to JSON, writes it followed by a
// newline and flushes the response.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

type frameRecord struct {
	Type   string   `json:"type"`
	Packet int      `json:"packet"`
	Index  int      `json:"index"`
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
	Speed  string   `json:"speed"`
	Colors []string `json:"colors"`
}

type eventRecord struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Sample int64  `json:"sample"`
	Packet int    `json:"packet"`
	Detail string `json:"detail,omitempty"`
}

type packetRecord struct {
	Type    string `json:"type"`
	Ordinal int    `json:"ordinal"`
	Frames  int    `json:"frames"`
}

// ndjsonSink streams each frame as soon as the decoder hands it over and
// marks packet boundaries with a packet record.
type ndjsonSink struct {
	out     *NDJSONWriter
	bits    uint8
	frames  int
	packets int
}

func (s *ndjsonSink) AddFrame(f decoder.Frame) error {
	rec := frameRecord{
		Type:   "frame",
		Packet: f.Packet,
		Index:  f.Index,
		Start:  f.Start,
		End:    f.End,
		Speed:  f.Speed.String(),
		Colors: hexColors(f.Colors, s.bits),
	}
	s.frames++
	return s.out.WriteObject(rec)
}

func (s *ndjsonSink) CommitPacketAndStartNew() error {
	if s.frames == 0 {
		return nil
	}
	rec := packetRecord{Type: "packet", Ordinal: s.packets, Frames: s.frames}
	s.packets++
	s.frames = 0
	return s.out.WriteObject(rec)
}

func (s *ndjsonSink) Commit() error { return nil }

func hexColors(colors []profile.RGB, bits uint8) []string {
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = c.Hex(bits)
	}
	return out
}
