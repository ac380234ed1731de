package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"example.com/ledgate/internal/decoder"
)

// Base selects how frame values are printed.
type Base int

const (
	BaseHex Base = iota
	BaseDecimal
)

func ParseBase(s string) (Base, error) {
	switch s {
	case "", "hex", "16":
		return BaseHex, nil
	case "dec", "decimal", "10":
		return BaseDecimal, nil
	}
	return 0, fmt.Errorf("unknown display base %q", s)
}

// ExportOptions controls ExportCSV. Times are printed relative to
// TriggerSample.
type ExportOptions struct {
	SampleRateHz  float64
	TriggerSample int64
	Bits          uint8
	Base          Base
	// Progress is called every few hundred rows with the index of the next
	// frame.
	Progress func(done, total int)
}

const exportProgressEvery = 256

// ExportCSV writes a "Time [s],Value" row per frame. Cancelling ctx stops the
// export between rows and returns the context error.
func ExportCSV(ctx context.Context, w io.Writer, frames []decoder.Frame, opts ExportOptions) error {
	if opts.SampleRateHz <= 0 {
		return fmt.Errorf("export: sample rate must be positive")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Time [s]", "Value"}); err != nil {
		return err
	}
	for i, f := range frames {
		if i%exportProgressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if opts.Progress != nil {
				opts.Progress(i, len(frames))
			}
		}
		t := float64(f.Start-opts.TriggerSample) / opts.SampleRateHz
		row := []string{strconv.FormatFloat(t, 'f', 9, 64), formatValue(f, opts)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if opts.Progress != nil {
		opts.Progress(len(frames), len(frames))
	}
	return cw.Error()
}

func formatValue(f decoder.Frame, opts ExportOptions) string {
	c := f.Color()
	if opts.Base == BaseDecimal {
		return fmt.Sprintf("%d %d %d", c.R, c.G, c.B)
	}
	bits := opts.Bits
	if bits == 0 {
		bits = 8
	}
	return c.Hex(bits)
}
