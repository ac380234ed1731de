// Package report renders decode results as JSON, PDF, CSV and text.
package report

import (
	"encoding/json"
	"os"
	"time"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/profile"
)

// CaptureInfo identifies the input a report was produced from.
type CaptureInfo struct {
	Path         string  `json:"path,omitempty"`
	Sha256       string  `json:"sha256,omitempty"`
	Size         int64   `json:"size,omitempty"`
	SampleRateHz float64 `json:"sampleRateHz"`
	Samples      int64   `json:"samples"`
}

type PacketRow struct {
	Ordinal    int     `json:"ordinal"`
	FirstFrame int     `json:"firstFrame"`
	LastFrame  int     `json:"lastFrame"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
	Speed      string  `json:"speed"`
}

type FrameRow struct {
	Packet   int      `json:"packet"`
	Index    int      `json:"index"`
	StartSec float64  `json:"startSec"`
	Colors   []string `json:"colors"`
}

// DecodeReport is the persisted summary of one decode run.
type DecodeReport struct {
	RunID       string          `json:"runId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Controller  string          `json:"controller"`
	Settings    string          `json:"settings"`
	Capture     CaptureInfo     `json:"capture"`
	Summary     decoder.Summary `json:"summary"`
	Packets     []PacketRow     `json:"packets"`
	Frames      []FrameRow      `json:"frames"`
	Events      []common.Event  `json:"events,omitempty"`
}

// Build assembles a report from in-memory results.
func Build(runID string, p profile.Profile, archive string, info CaptureInfo, res *decoder.Results, sum decoder.Summary, events []common.Event) DecodeReport {
	rep := DecodeReport{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Controller:  p.Name(),
		Settings:    archive,
		Capture:     info,
		Summary:     sum,
		Events:      events,
	}
	rate := info.SampleRateHz
	seconds := func(s int64) float64 {
		if rate <= 0 {
			return 0
		}
		return float64(s) / rate
	}
	for i, pr := range res.Packets {
		frames := res.PacketFrames(i)
		first, last := frames[0], frames[len(frames)-1]
		rep.Packets = append(rep.Packets, PacketRow{
			Ordinal:    first.Packet,
			FirstFrame: pr.First,
			LastFrame:  pr.Last,
			StartSec:   seconds(first.Start),
			EndSec:     seconds(last.End),
			Speed:      first.Speed.String(),
		})
	}
	for _, f := range res.Frames {
		row := FrameRow{Packet: f.Packet, Index: f.Index, StartSec: seconds(f.Start)}
		for _, c := range f.Colors {
			row.Colors = append(row.Colors, c.Hex(p.BitsPerChannel()))
		}
		rep.Frames = append(rep.Frames, row)
	}
	return rep
}

func SaveJSON(rep DecodeReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (DecodeReport, error) {
	var rep DecodeReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
