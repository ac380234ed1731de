package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/decoder"
	"example.com/ledgate/internal/encoder"
	"example.com/ledgate/internal/profile"
)

func scenario(t *testing.T) (*decoder.Results, decoder.Summary) {
	t.Helper()
	p := profile.Get(profile.WS2811)
	enc, err := encoder.New(p, 20e6)
	if err != nil {
		t.Fatalf("encoder.New: %v", err)
	}
	enc.WriteReset()
	for i := 0; i < 2; i++ {
		if err := enc.WriteHex("#aabbcc", "#223344", "#667788"); err != nil {
			t.Fatalf("WriteHex: %v", err)
		}
	}
	res, sum, err := decoder.Decode(context.Background(), enc.Finish(), p, decoder.Options{SampleRateHz: 20e6})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return res, sum
}

func TestBubbleAndTabularText(t *testing.T) {
	res, _ := scenario(t)
	if got := BubbleText(res.Frames[2], 8); got != "LED 2 #667788" {
		t.Fatalf("BubbleText = %q", got)
	}
	f := decoder.Frame{Index: 4, Colors: []profile.RGB{{R: 0xfff}, {G: 0x100}, {B: 0x010}}}
	if got := TabularText(f, 12); got != "LED 4 #ff0000 #001000 #000001" {
		t.Fatalf("TabularText = %q", got)
	}
	var sb strings.Builder
	WriteText(&sb, profile.Get(profile.WS2811), res)
	if !strings.Contains(sb.String(), "packet 1\n  LED 0 #aabbcc\n") {
		t.Fatalf("WriteText output:\n%s", sb.String())
	}
}

func TestExportCSV(t *testing.T) {
	res, _ := scenario(t)
	var buf bytes.Buffer
	var calls int
	err := ExportCSV(context.Background(), &buf, res.Frames, ExportOptions{
		SampleRateHz:  20e6,
		TriggerSample: res.Frames[0].Start,
		Progress:      func(done, total int) { calls++ },
	})
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("lines = %d, want 7:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Time [s],Value" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "0.000000000,#aabbcc" {
		t.Fatalf("first row = %q", lines[1])
	}
	// 24 bits of 2.5us each.
	if lines[2] != "0.000060000,#223344" {
		t.Fatalf("second row = %q", lines[2])
	}
	if calls != 2 {
		t.Fatalf("progress calls = %d, want 2", calls)
	}

	buf.Reset()
	if err := ExportCSV(context.Background(), &buf, res.Frames[:1], ExportOptions{SampleRateHz: 20e6, Base: BaseDecimal}); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if !strings.Contains(buf.String(), ",170 187 204") {
		t.Fatalf("decimal export = %q", buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ExportCSV(ctx, &buf, res.Frames, ExportOptions{SampleRateHz: 20e6}); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestJSONAndPDF(t *testing.T) {
	res, sum := scenario(t)
	p := profile.Get(profile.WS2811)
	info := CaptureInfo{
		Path:         "scenario.ledcap",
		Sha256:       common.Sha256OfBytes([]byte("scenario")),
		SampleRateHz: 20e6,
		Samples:      10000,
	}
	events := []common.Event{{Kind: "resync", Sample: 42, Detail: "high phase out of tolerance"}}
	rep := Build("run-1", p, "0 0", info, res, sum, events)
	if len(rep.Packets) != 2 || rep.Packets[1].FirstFrame != 3 || rep.Packets[1].Ordinal != 1 {
		t.Fatalf("packets = %+v", rep.Packets)
	}
	if rep.Frames[5].Colors[0] != "#667788" {
		t.Fatalf("frame 5 = %+v", rep.Frames[5])
	}

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	if err := SaveJSON(rep, jsonPath); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	back, err := LoadJSON(jsonPath)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if back.RunID != "run-1" || back.Summary.Frames != 6 || len(back.Events) != 1 {
		t.Fatalf("LoadJSON = %+v", back)
	}

	pdfPath := filepath.Join(dir, "report.pdf")
	if err := SaveDecodePDF(rep, pdfPath); err != nil {
		t.Fatalf("SaveDecodePDF: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestCaptureHashToQR(t *testing.T) {
	png, err := CaptureHashToQR("ab:cd-01", 64)
	if err != nil {
		t.Fatalf("CaptureHashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
	if _, err := CaptureHashToQR("zz", 64); err == nil {
		t.Fatalf("expected error for hash without hex digits")
	}
}
