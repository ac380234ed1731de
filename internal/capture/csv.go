package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"example.com/ledgate/internal/channel"
)

var ErrEmptyCSV = errors.New("capture: no transitions in csv")

// ImportCSV reads a logic-analyzer digital export: one row per level change
// with the time in seconds and the new level (0 or 1). The first row gives the
// level at the start of the capture. A header row is skipped when present.
func ImportCSV(r io.Reader, sampleRateHz float64) (*Capture, error) {
	if sampleRateHz <= 0 {
		return nil, ErrSampleRate
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		b      *channel.Builder
		origin float64
		line   int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("capture: csv line %d: want time and level", line)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("capture: csv line %d: %v", line, err)
		}
		lv, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || (lv != 0 && lv != 1) {
			return nil, fmt.Errorf("capture: csv line %d: level %q", line, rec[1])
		}
		level := channel.Level(lv)
		if b == nil {
			origin = t
			b = channel.NewBuilder(level)
			continue
		}
		pos := int64(math.Round((t - origin) * sampleRateHz))
		if pos < b.Position() {
			return nil, fmt.Errorf("capture: csv line %d: time goes backwards", line)
		}
		b.Advance(pos - b.Position())
		b.TransitionTo(level)
	}
	if b == nil {
		return nil, ErrEmptyCSV
	}
	b.Advance(1)
	return &Capture{SampleRateHz: sampleRateHz, Buffer: b.Buffer()}, nil
}

// Open loads path as a .csv export when the extension says so, otherwise as a
// ledcap file. csvRateHz is only used for CSV input.
func Open(path string, csvRateHz float64) (*Capture, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := ImportCSV(f, csvRateHz)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
