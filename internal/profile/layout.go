package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Layout is the order color channels appear on the wire.
type Layout uint8

const (
	LayoutRGB Layout = iota
	LayoutGRB
)

func (l Layout) String() string {
	if l == LayoutGRB {
		return "GRB"
	}
	return "RGB"
}

// RGB is one LED color in canonical order. Values are in the controller's
// native channel width.
type RGB struct {
	R uint16 `json:"r"`
	G uint16 `json:"g"`
	B uint16 `json:"b"`
}

// Pack folds the color into a single integer, 16 bits per channel with red
// in the most significant position.
func (c RGB) Pack() uint64 {
	return uint64(c.R)<<32 | uint64(c.G)<<16 | uint64(c.B)
}

func Unpack(v uint64) RGB {
	return RGB{R: uint16(v >> 32), G: uint16(v >> 16), B: uint16(v)}
}

// To8Bit scales a color of the given channel width down to 8 bits.
func (c RGB) To8Bit(bits uint8) RGB {
	if bits <= 8 {
		return c
	}
	shift := bits - 8
	return RGB{R: c.R >> shift, G: c.G >> shift, B: c.B >> shift}
}

// Hex renders the color as #rrggbb after scaling to 8 bits.
func (c RGB) Hex(bits uint8) string {
	s := c.To8Bit(bits)
	return fmt.Sprintf("#%02x%02x%02x", s.R, s.G, s.B)
}

var ErrBadColor = errors.New("malformed color")

// ParseHex parses "#rrggbb" or "rrggbb" into an 8-bit color.
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	return RGB{R: uint16(v >> 16 & 0xff), G: uint16(v >> 8 & 0xff), B: uint16(v & 0xff)}, nil
}

// ToCanonical maps wire-ordered channel words into canonical colors. Each
// group of three words is one triple; controllers with nine channels yield
// three triples.
func ToCanonical(l Layout, words []uint16) []RGB {
	out := make([]RGB, 0, len(words)/3)
	for i := 0; i+2 < len(words); i += 3 {
		a, b, c := words[i], words[i+1], words[i+2]
		if l == LayoutGRB {
			out = append(out, RGB{R: b, G: a, B: c})
		} else {
			out = append(out, RGB{R: a, G: b, B: c})
		}
	}
	return out
}

// FromCanonical is the inverse of ToCanonical.
func FromCanonical(l Layout, colors []RGB) []uint16 {
	out := make([]uint16, 0, len(colors)*3)
	for _, c := range colors {
		if l == LayoutGRB {
			out = append(out, c.G, c.R, c.B)
		} else {
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}
