// Package profile describes the supported LED controllers: their bit timing,
// reset window, word width, channel count and wire color order.
package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"example.com/ledgate/internal/timing"
)

// Controller selects a row of the static profile table. The numeric values are
// persisted in settings archives and must not be reordered.
type Controller int

const (
	WS2811 Controller = iota
	WS2812B
	WS2813
	TM1809
	TM1804
	UCS1903
	LPD1886_8
	LPD1886_12
	numControllers
)

var ErrUnknownController = errors.New("unknown LED controller")

// BitOrder is the order channel words are shifted onto the wire.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// Profile is an immutable description of one controller.
type Profile struct {
	controller Controller
	name       string
	layout     Layout
	bits       uint8
	channels   uint8
	order      BitOrder
	reset      timing.Window
	normal     [2]timing.BitTiming
	high       [2]timing.BitTiming
	hasHigh    bool
}

func bit(highNS, lowNS [3]float64) timing.BitTiming {
	return timing.BitTiming{
		High: timing.NS(highNS[0], highNS[1], highNS[2]),
		Low:  timing.NS(lowNS[0], lowNS[1], lowNS[2]),
	}
}

// table is indexed by Controller. High-phase windows inside each row are
// disjoint, including across speeds.
var table = [numControllers]Profile{
	WS2811: {
		name: "WS2811", layout: LayoutRGB, bits: 8, channels: 3,
		reset: timing.NS(50000, 60000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{350, 500, 550}, [3]float64{1800, 2000, 2200}),
			bit([3]float64{1000, 1200, 1400}, [3]float64{1100, 1300, 1500}),
		},
		high: [2]timing.BitTiming{
			bit([3]float64{150, 250, 300}, [3]float64{850, 1000, 1150}),
			bit([3]float64{650, 700, 850}, [3]float64{500, 600, 700}),
		},
		hasHigh: true,
	},
	WS2812B: {
		name: "WS2812B", layout: LayoutGRB, bits: 8, channels: 3,
		reset: timing.NS(50000, 60000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{250, 400, 550}, [3]float64{700, 850, 1000}),
			bit([3]float64{650, 800, 950}, [3]float64{300, 450, 600}),
		},
	},
	WS2813: {
		name: "WS2813", layout: LayoutGRB, bits: 8, channels: 3,
		reset: timing.NS(280000, 300000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{220, 300, 380}, [3]float64{580, 750, 1000}),
			bit([3]float64{580, 750, 1000}, [3]float64{220, 300, 420}),
		},
	},
	TM1809: {
		name: "TM1809", layout: LayoutRGB, bits: 8, channels: 9,
		reset: timing.NS(24000, 30000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{450, 600, 750}, [3]float64{1750, 1900, 2050}),
			bit([3]float64{1050, 1200, 1350}, [3]float64{1150, 1300, 1450}),
		},
	},
	TM1804: {
		name: "TM1804", layout: LayoutRGB, bits: 8, channels: 3,
		reset: timing.NS(24000, 30000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{550, 700, 850}, [3]float64{1650, 1800, 1950}),
			bit([3]float64{1350, 1500, 1650}, [3]float64{850, 1000, 1150}),
		},
	},
	UCS1903: {
		name: "UCS1903", layout: LayoutRGB, bits: 8, channels: 3,
		reset: timing.NS(24000, 30000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{350, 500, 650}, [3]float64{1850, 2000, 2150}),
			bit([3]float64{1850, 2000, 2150}, [3]float64{350, 500, 650}),
		},
	},
	LPD1886_8: {
		name: "LPD1886 (8-bit)", layout: LayoutRGB, bits: 8, channels: 3,
		reset: timing.NS(24000, 30000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{250, 400, 550}, [3]float64{700, 850, 1000}),
			bit([3]float64{650, 800, 950}, [3]float64{300, 450, 600}),
		},
	},
	LPD1886_12: {
		name: "LPD1886 (12-bit)", layout: LayoutRGB, bits: 12, channels: 3,
		reset: timing.NS(24000, 30000, 0),
		normal: [2]timing.BitTiming{
			bit([3]float64{250, 400, 550}, [3]float64{700, 850, 1000}),
			bit([3]float64{650, 800, 950}, [3]float64{300, 450, 600}),
		},
	},
}

func init() {
	for i := range table {
		table[i].controller = Controller(i)
	}
}

// Get returns the profile for c. Passing a controller outside the table is a
// programming error and panics.
func Get(c Controller) Profile {
	if !c.Valid() {
		panic(fmt.Sprintf("profile: controller %d out of range", int(c)))
	}
	return table[c]
}

// All returns every profile in controller order.
func All() []Profile {
	out := make([]Profile, len(table))
	copy(out, table[:])
	return out
}

func (c Controller) Valid() bool {
	return c >= 0 && c < numControllers
}

func (c Controller) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Controller(%d)", int(c))
	}
	return table[c].name
}

// Slug is the lower-case identifier used on command lines and in config
// files, e.g. "ws2812b" or "lpd1886-12".
func (c Controller) Slug() string {
	switch c {
	case LPD1886_8:
		return "lpd1886-8"
	case LPD1886_12:
		return "lpd1886-12"
	}
	return strings.ToLower(c.String())
}

// ParseController accepts a slug, a display name or a table index.
func ParseController(s string) (Controller, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownController)
	}
	if n, err := strconv.Atoi(s); err == nil {
		c := Controller(n)
		if !c.Valid() {
			return 0, fmt.Errorf("%w: index %d", ErrUnknownController, n)
		}
		return c, nil
	}
	for c := Controller(0); c < numControllers; c++ {
		if strings.EqualFold(s, c.Slug()) || strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	if strings.EqualFold(s, "lpd1886") {
		return LPD1886_8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownController, s)
}

func (p Profile) Controller() Controller { return p.controller }
func (p Profile) Name() string           { return p.name }
func (p Profile) ColorLayout() Layout    { return p.layout }
func (p Profile) BitsPerChannel() uint8  { return p.bits }
func (p Profile) ChannelCount() uint8    { return p.channels }
func (p Profile) ShiftOrder() BitOrder   { return p.order }
func (p Profile) ResetWindow() timing.Window {
	return p.reset
}

func (p Profile) HighSpeedSupported() bool {
	return p.hasHigh
}

// MaxChannelValue is the largest value a single channel word can carry.
func (p Profile) MaxChannelValue() uint16 {
	return uint16(1)<<p.bits - 1
}

// BitsPerFrame is the number of bits one LED consumes.
func (p Profile) BitsPerFrame() int {
	return int(p.bits) * int(p.channels)
}

// Lookup returns the timing for a 0 or 1 bit at the given speed. Asking for
// high-speed timing on a profile without it panics.
func (p Profile) Lookup(b uint8, speed timing.Speed) timing.BitTiming {
	if b > 1 {
		panic(fmt.Sprintf("profile: bit value %d", b))
	}
	if speed == timing.SpeedHigh {
		if !p.hasHigh {
			panic(fmt.Sprintf("profile: %s has no high-speed timing", p.name))
		}
		return p.high[b]
	}
	return p.normal[b]
}

// Speeds lists the speeds this profile can be driven at.
func (p Profile) Speeds() []timing.Speed {
	if p.hasHigh {
		return []timing.Speed{timing.SpeedNormal, timing.SpeedHigh}
	}
	return []timing.Speed{timing.SpeedNormal}
}
