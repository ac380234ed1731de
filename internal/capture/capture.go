// Package capture reads and writes recorded LED data lines.
//
// A .ledcap file is a fixed little-endian header followed by the gaps
// between consecutive edges as unsigned varints:
//
//	magic "LEDC" | version u8 | initial level u8 | reserved u16
//	sample rate f64 | end sample i64 | edge count u64 | deltas...
//
// Files may be wrapped in a zstd frame; readers detect this from the first
// bytes rather than the file name.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/common"
)

const (
	version     = 1
	headerSize  = 32
	maxPrealloc = 1 << 16
)

var (
	magic     = [4]byte{'L', 'E', 'D', 'C'}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

	ErrBadMagic   = errors.New("capture: not a ledcap file")
	ErrVersion    = errors.New("capture: unsupported version")
	ErrTruncated  = errors.New("capture: truncated edge data")
	ErrSampleRate = errors.New("capture: sample rate must be positive")
)

// Capture is one channel plus the rate it was sampled at.
type Capture struct {
	SampleRateHz float64
	Buffer       *channel.Buffer
}

func (c *Capture) Duration() float64 {
	if c.SampleRateHz <= 0 {
		return 0
	}
	return float64(c.Buffer.End()) / c.SampleRateHz
}

// Write encodes c without compression.
func Write(w io.Writer, c *Capture) error {
	if c.SampleRateHz <= 0 {
		return ErrSampleRate
	}
	edges := c.Buffer.Edges()
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	hdr[4] = version
	hdr[5] = byte(c.Buffer.InitialLevel())
	binary.LittleEndian.PutUint64(hdr[8:16], math.Float64bits(c.SampleRateHz))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(c.Buffer.End()))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(len(edges)))
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	var buf [binary.MaxVarintLen64]byte
	var prev int64
	for _, e := range edges {
		n := binary.PutUvarint(buf[:], uint64(e-prev))
		if _, err := bw.Write(buf[:n]); err != nil {
			return err
		}
		prev = e
	}
	return bw.Flush()
}

// Read decodes a capture, transparently inflating zstd input.
func Read(r io.Reader) (*Capture, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readRaw(bufio.NewReader(zr))
	}
	return readRaw(br)
}

func readRaw(br *bufio.Reader) (*Capture, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, ErrBadMagic
	}
	if hdr[4] != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr[4])
	}
	initial := channel.Level(hdr[5] & 1)
	rate := math.Float64frombits(binary.LittleEndian.Uint64(hdr[8:16]))
	if !(rate > 0) {
		return nil, ErrSampleRate
	}
	end := int64(binary.LittleEndian.Uint64(hdr[16:24]))
	if end < 0 {
		return nil, fmt.Errorf("capture: negative sample count %d", end)
	}
	count := binary.LittleEndian.Uint64(hdr[24:32])
	if count > uint64(end) {
		return nil, fmt.Errorf("capture: %d edges cannot fit in %d samples", count, end)
	}
	// The header is untrusted; grow with the deltas actually present.
	edges := make([]int64, 0, min(count, maxPrealloc))
	var pos int64
	for i := uint64(0); i < count; i++ {
		d, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("%w: edge %d: %v", ErrTruncated, i, err)
		}
		pos += int64(d)
		edges = append(edges, pos)
	}
	buf, err := channel.NewBuffer(initial, edges, end)
	if err != nil {
		return nil, err
	}
	return &Capture{SampleRateHz: rate, Buffer: buf}, nil
}

// IsCompressedPath reports whether WriteFile will zstd-compress path.
func IsCompressedPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zst")
}

// WriteFile stores c at path, compressing when the name ends in .zst.
func WriteFile(path string, c *Capture) error {
	var raw bytes.Buffer
	if err := Write(&raw, c); err != nil {
		return err
	}
	data := raw.Bytes()
	if IsCompressedPath(path) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return err
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}
	return common.WriteFileAtomic(path, data)
}

func ReadFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
