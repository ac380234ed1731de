// Package plot draws pulse-width histograms of a capture against a
// controller's tolerance windows.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"example.com/ledgate/internal/channel"
	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/timing"
)

var ErrNoPulses = errors.New("plot: capture has no complete pulses")

var (
	highColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xc0}
	lowColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xc0}
	zeroColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	oneColor  = color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}
)

// Widths holds phase durations in nanoseconds. Low phases long enough to be
// resets are only counted.
type Widths struct {
	High   []float64
	Low    []float64
	Resets int
}

func Collect(buf *channel.Buffer, sampleRateHz float64, p profile.Profile) Widths {
	var w Widths
	eps := timing.HalfSample(sampleRateHz)
	for _, ph := range buf.Phases() {
		sec := timing.Seconds(ph.Length, sampleRateHz)
		if ph.Level == channel.High {
			w.High = append(w.High, sec*1e9)
			continue
		}
		if p.ResetWindow().AtLeastMin(sec, eps) {
			w.Resets++
			continue
		}
		w.Low = append(w.Low, sec*1e9)
	}
	return w
}

// Render builds a plot with both histograms and dashed markers at each
// normal-speed window bound.
func Render(w Widths, p profile.Profile, bins int) (*plot.Plot, error) {
	if len(w.High) == 0 && len(w.Low) == 0 {
		return nil, ErrNoPulses
	}
	if bins <= 0 {
		bins = 60
	}
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s pulse widths (%d resets)", p.Name(), w.Resets)
	pl.X.Label.Text = "duration (ns)"
	pl.Y.Label.Text = "count"

	var top float64
	for _, series := range []struct {
		name   string
		values []float64
		fill   color.Color
	}{
		{"high", w.High, highColor},
		{"low", w.Low, lowColor},
	} {
		if len(series.values) == 0 {
			continue
		}
		h, err := plotter.NewHist(plotter.Values(series.values), bins)
		if err != nil {
			return nil, err
		}
		h.FillColor = series.fill
		h.LineStyle.Width = vg.Points(0.5)
		for _, b := range h.Bins {
			if b.Weight > top {
				top = b.Weight
			}
		}
		pl.Add(h)
		pl.Legend.Add(series.name, h)
	}

	for b := uint8(0); b < 2; b++ {
		bt := p.Lookup(b, timing.SpeedNormal)
		c := zeroColor
		if b == 1 {
			c = oneColor
		}
		for _, win := range []timing.Window{bt.High, bt.Low} {
			for _, x := range []float64{win.Min * 1e9, win.Max * 1e9} {
				line, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: top}})
				if err != nil {
					return nil, err
				}
				line.Color = c
				line.Width = vg.Points(1)
				line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
				pl.Add(line)
			}
		}
	}
	pl.Legend.Top = true
	return pl, nil
}

// SavePNG writes the plot to path; the format follows the extension.
func SavePNG(pl *plot.Plot, path string) error {
	return pl.Save(10*vg.Inch, 5*vg.Inch, path)
}

// WritePNG streams the plot as PNG.
func WritePNG(pl *plot.Plot, w io.Writer) error {
	wt, err := pl.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
