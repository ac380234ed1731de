package report

import (
	"fmt"
	"strings"

	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/profile"
)

// BubbleText is the short label drawn over a frame in a waveform view.
func BubbleText(f decoder.Frame, bits uint8) string {
	c := f.Color().To8Bit(bits)
	return fmt.Sprintf("LED %d #%02x%02x%02x", f.Index, c.R, c.G, c.B)
}

// TabularText is the one-line form used in frame tables. Nine channel
// controllers list every triple.
func TabularText(f decoder.Frame, bits uint8) string {
	parts := make([]string, len(f.Colors))
	for i, c := range f.Colors {
		parts[i] = c.Hex(bits)
	}
	return fmt.Sprintf("LED %d %s", f.Index, strings.Join(parts, " "))
}

// WriteText prints one line per frame, with a blank line between packets.
func WriteText(sb *strings.Builder, p profile.Profile, res *decoder.Results) {
	for i := range res.Packets {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(sb, "packet %d\n", i)
		for _, f := range res.PacketFrames(i) {
			sb.WriteString("  ")
			sb.WriteString(TabularText(f, p.BitsPerChannel()))
			sb.WriteByte('\n')
		}
	}
}
